// Command bot connects to the builder socket and lays down a powered line: a
// windmill, a run of axles and a consumer at the far end.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mechpower.ai/internal/logging"
	"mechpower.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		origin   = flag.String("origin", "0,0,0", "windmill position x,y,z")
		length   = flag.Int("length", 8, "axles between windmill and consumer")
		speed    = flag.Float64("speed", 0.1, "windmill speed")
		torque   = flag.Float64("torque", 32, "windmill torque")
		demand   = flag.Float64("demand", 4, "consumer demand")
		teardown = flag.Bool("clear", false, "break the line instead of building it")
	)
	flag.Parse()

	logger, err := logging.New("info")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	log := logger.Named("bot")

	o, err := parseVec3(*origin)
	if err != nil {
		log.Fatal("bad -origin", zap.Error(err))
	}
	plan := linePlan(o, *length, *speed, *torque, *demand)
	if *teardown {
		plan = clearPlan(plan)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	res, err := run(ctx, conn, *name, plan, log)
	if err != nil {
		log.Fatal("run", zap.Error(err))
	}
	log.Info("done", zap.Int("accepted", res.Accepted), zap.Int("rejected", res.Rejected))
}

// linePlan lays a line along +X: windmill at o, length axles, then a consumer.
func linePlan(o [3]int, length int, speed, torque, demand float64) []protocol.CmdMsg {
	at := func(dx int) [3]int { return [3]int{o[0] + dx, o[1], o[2]} }
	plan := []protocol.CmdMsg{{Op: "PLACE", Pos: at(0), Kind: "WINDMILL", Axis: "X", Speed: speed, Torque: torque}}
	for i := 1; i <= length; i++ {
		plan = append(plan, protocol.CmdMsg{Op: "PLACE", Pos: at(i), Kind: "AXLE", Axis: "X"})
	}
	plan = append(plan, protocol.CmdMsg{Op: "PLACE", Pos: at(length + 1), Kind: "CONSUMER", Axis: "X", Demand: demand})
	for i := range plan {
		plan[i].ID = fmt.Sprintf("K_%d", i+1)
	}
	return plan
}

// clearPlan breaks a built plan from the far end back.
func clearPlan(plan []protocol.CmdMsg) []protocol.CmdMsg {
	out := make([]protocol.CmdMsg, 0, len(plan))
	for i := len(plan) - 1; i >= 0; i-- {
		out = append(out, protocol.CmdMsg{ID: fmt.Sprintf("K_break_%d", len(out)+1), Op: "BREAK", Pos: plan[i].Pos})
	}
	return out
}

type result struct {
	Accepted int
	Rejected int
	Codes    []string
}

// run performs the handshake and sends plan one command at a time, waiting
// for each ACK.
func run(ctx context.Context, conn *websocket.Conn, name string, plan []protocol.CmdMsg, log *zap.Logger) (result, error) {
	var res result
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
		MaxQueue:        8,
	}); err != nil {
		return res, fmt.Errorf("send HELLO: %w", err)
	}

	var welcome protocol.WelcomeMsg
	if err := readTyped(conn, protocol.TypeWelcome, &welcome); err != nil {
		return res, err
	}
	log.Info("welcome",
		zap.String("session", welcome.SessionID),
		zap.String("world", welcome.WorldID),
		zap.Uint64("tick", welcome.Tick),
		zap.Int("tick_rate", welcome.WorldParams.TickRateHz))

	for _, cmd := range plan {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cmd.Type = protocol.TypeCmd
		cmd.ProtocolVersion = protocol.Version
		if err := conn.WriteJSON(cmd); err != nil {
			return res, fmt.Errorf("send %s: %w", cmd.ID, err)
		}
		var ack protocol.AckMsg
		if err := readTyped(conn, protocol.TypeAck, &ack); err != nil {
			return res, err
		}
		if ack.Accepted {
			res.Accepted++
			log.Debug("ack", zap.String("id", ack.AckFor), zap.Uint64("tick", ack.ServerTick))
			continue
		}
		res.Rejected++
		res.Codes = append(res.Codes, ack.Code)
		log.Warn("rejected", zap.String("id", ack.AckFor), zap.String("code", ack.Code), zap.String("message", ack.Message))
	}
	return res, nil
}

func readTyped(conn *websocket.Conn, typ string, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read %s: %w", typ, err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	if base.Type != typ {
		return errors.New("expected " + typ + ", got " + base.Type + ": " + string(msg))
	}
	return json.Unmarshal(msg, v)
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
