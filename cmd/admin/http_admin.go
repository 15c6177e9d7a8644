package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"mechpower.ai/internal/sim/world"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func commandCmd(args []string) {
	fs := flag.NewFlagSet("cmd", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	op := fs.String("op", "PLACE", "PLACE, BREAK, RECONFIGURE, SET_POWER or SET_DEMAND")
	pos := fs.String("pos", "0,0,0", "block position x,y,z")
	kind := fs.String("kind", "", "block kind (PLACE, RECONFIGURE)")
	axis := fs.String("axis", "", "shaft axis X, Y or Z")
	faces := fs.String("faces", "", "comma separated faces, e.g. +X,-Z")
	engaged := fs.Bool("engaged", false, "clutch engaged")
	speed := fs.Float64("speed", 0, "provided speed")
	torque := fs.Float64("torque", 0, "provided torque")
	demand := fs.Float64("demand", 0, "required torque")
	_ = fs.Parse(args)

	p, err := parseVec3(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}
	req := world.CommandRequest{
		Op:      *op,
		Pos:     p,
		Kind:    *kind,
		Axis:    *axis,
		Engaged: *engaged,
		Speed:   *speed,
		Torque:  *torque,
		Demand:  *demand,
	}
	for _, f := range strings.Split(*faces, ",") {
		if f = strings.TrimSpace(f); f != "" {
			req.Faces = append(req.Faces, f)
		}
	}
	body, _ := json.Marshal(req)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/commands"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
