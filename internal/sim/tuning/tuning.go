package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a tuning file that parses but breaks the schema.
var ErrInvalid = errors.New("tuning: invalid")

//go:embed tuning.schema.json
var schemaJSON []byte

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	SyncEveryTicks   int     `yaml:"sync_every_ticks"`
	SyncSpeedQuantum float64 `yaml:"sync_speed_quantum"`

	SpinUpStep           float64 `yaml:"spin_up_step"`
	SpinDownStep         float64 `yaml:"spin_down_step"`
	TorqueDeficitDamping float64 `yaml:"torque_deficit_damping"`

	InvalidRecheckTicks int `yaml:"invalid_recheck_ticks"`
	SnapshotEveryTicks  int `yaml:"snapshot_every_ticks"`
	ObserverQueue       int `yaml:"observer_queue"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:           20,
		SyncEveryTicks:       20,
		SyncSpeedQuantum:     0.001,
		SpinUpStep:           0.002,
		SpinDownStep:         0.01,
		TorqueDeficitDamping: 0.05,
		InvalidRecheckTicks:  5,
		SnapshotEveryTicks:   6000,
		ObserverQueue:        64,
	}
}

func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	t, err := Parse(raw)
	if err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse validates raw yaml against the schema and overlays it on Defaults.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		return t, nil
	}
	if err := validate(doc); err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("tuning.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("tuning.schema.json")
	})
	return schema, schemaErr
}

func validate(doc any) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("tuning schema: %w", err)
	}
	// The validator wants JSON-decoded values, not yaml's native ints.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
