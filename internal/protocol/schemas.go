package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchema marks a message that is well-formed JSON but breaks its schema.
var ErrSchema = errors.New("protocol: schema violation")

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

var schemaFiles = map[string]string{
	TypeHello: "hello.schema.json",
	TypeCmd:   "cmd.schema.json",
	TypeAck:   "ack.schema.json",
}

func compiled() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, name := range schemaFiles {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = err
				return
			}
			if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
				schemaErr = err
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			s, err := c.Compile(name)
			if err != nil {
				schemaErr = err
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemaErr
}

// Validate checks raw against the schema of message type typ.
func Validate(typ string, raw []byte) error {
	all, err := compiled()
	if err != nil {
		return fmt.Errorf("protocol schemas: %w", err)
	}
	s, ok := all[typ]
	if !ok {
		return fmt.Errorf("%w: no schema for %q", ErrSchema, typ)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
