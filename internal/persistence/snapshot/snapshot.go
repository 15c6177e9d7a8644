package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the only layout ReadSnapshot accepts.
const Version = 1

var ErrVersion = errors.New("snapshot: unsupported version")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	RunID   string `json:"run_id,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int `json:"tick_rate_hz"`
	SnapshotEveryTicks int `json:"snapshot_every_ticks,omitempty"`

	Blocks   []BlockV1   `json:"blocks"`
	Networks []NetworkV1 `json:"networks,omitempty"`

	Counters CountersV1 `json:"counters"`
}

// BlockV1 is one power block with the latched rotation it last committed.
// Network ids are informational: connectivity is rediscovered on import.
type BlockV1 struct {
	Pos     [3]int   `json:"pos"`
	Kind    string   `json:"kind"`
	Axis    string   `json:"axis,omitempty"`
	Faces   []string `json:"faces,omitempty"`
	Engaged bool     `json:"engaged,omitempty"`

	Speed  float64 `json:"speed,omitempty"`
	Torque float64 `json:"torque,omitempty"`
	Demand float64 `json:"demand,omitempty"`

	Latch   *LatchV1 `json:"latch,omitempty"`
	Network uint64   `json:"network,omitempty"`

	// Invalid blocks are awaiting a re-check at RecheckTick.
	Invalid     bool   `json:"invalid,omitempty"`
	RecheckTick uint64 `json:"recheck_tick,omitempty"`
}

type LatchV1 struct {
	Face string `json:"face"`
	Dir  string `json:"dir"`
}

// NetworkV1 carries the motion of a network so visuals resume where they
// stopped.
type NetworkV1 struct {
	ID           uint64  `json:"id"`
	CurrentSpeed float64 `json:"current_speed"`
	CurrentAngle float64 `json:"current_angle"`
	Active       bool    `json:"active"`
}

type CountersV1 struct {
	Placed   uint64 `json:"placed"`
	Rejected uint64 `json:"rejected"`
	Broken   uint64 `json:"broken"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
