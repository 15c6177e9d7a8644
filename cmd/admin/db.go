package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	since := fs.Uint64("since", 0, "first tick (audits, stats)")
	event := fs.String("event", "", "event filter (audits)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	var rows []any
	switch q {
	case "snapshots":
		rows, err = querySnapshots(db, *limit)
	case "audits":
		rows, err = queryAudits(db, *since, strings.ToUpper(strings.TrimSpace(*event)), *limit)
	case "stats":
		rows, err = queryStats(db, *since, *limit)
	case "meta":
		rows, err = queryMeta(db)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-since T] [-event E] snapshots|audits|stats|meta")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type snapshotRow struct {
	Tick     int64  `json:"tick"`
	Path     string `json:"path"`
	RunID    string `json:"run_id"`
	Blocks   int    `json:"blocks"`
	Networks int    `json:"networks"`
	Invalid  int    `json:"invalid"`
}

func querySnapshots(db *sql.DB, limit int) ([]any, error) {
	rows, err := db.Query(`SELECT tick,path,run_id,blocks,networks,invalid FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.RunID, &r.Blocks, &r.Networks, &r.Invalid); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// queryAudits returns the raw audit JSON so new fields show up unchanged.
func queryAudits(db *sql.DB, since uint64, event string, limit int) ([]any, error) {
	query := `SELECT raw_json FROM audits WHERE tick >= ?`
	args := []any{int64(since)}
	if event != "" {
		query += ` AND event = ?`
		args = append(args, event)
	}
	query += ` ORDER BY tick, seq LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

type statsRow struct {
	Tick           int64 `json:"tick"`
	Nodes          int   `json:"nodes"`
	Networks       int   `json:"networks"`
	ActiveNetworks int   `json:"active_networks"`
}

func queryStats(db *sql.DB, since uint64, limit int) ([]any, error) {
	rows, err := db.Query(`SELECT tick,nodes,networks,active_networks FROM power_stats WHERE tick >= ? ORDER BY tick LIMIT ?`, int64(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r statsRow
		if err := rows.Scan(&r.Tick, &r.Nodes, &r.Networks, &r.ActiveNetworks); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryMeta(db *sql.DB) ([]any, error) {
	rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var kv struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
