package world

import (
	"fmt"
	"strings"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/node"
)

type CommandKind uint8

const (
	CmdPlace CommandKind = iota + 1
	CmdBreak
	CmdReconfigure
	CmdSetPower
	CmdSetDemand
)

var commandNames = map[CommandKind]string{
	CmdPlace:       "PLACE",
	CmdBreak:       "BREAK",
	CmdReconfigure: "RECONFIGURE",
	CmdSetPower:    "SET_POWER",
	CmdSetDemand:   "SET_DEMAND",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is one block mutation queued for the next tick. Place and
// Reconfigure read Spec; the others read Pos and the scalar fields.
type Command struct {
	Kind   CommandKind
	Spec   node.Spec
	Pos    geom.Pos
	Speed  float64
	Torque float64
	Demand float64

	// Resp, if set, receives the outcome. It must be buffered.
	Resp chan error
}

func (w *World) apply(c Command) error {
	switch c.Kind {
	case CmdPlace:
		return w.Place(c.Spec)
	case CmdBreak:
		return w.Break(c.Pos)
	case CmdReconfigure:
		return w.Reconfigure(c.Spec)
	case CmdSetPower:
		return w.SetPower(c.Pos, c.Speed, c.Torque)
	case CmdSetDemand:
		return w.SetDemand(c.Pos, c.Demand)
	default:
		return fmt.Errorf("unknown command %v", c.Kind)
	}
}

// CommandRequest is the JSON form accepted by the admin API.
type CommandRequest struct {
	Op      string   `json:"op"`
	Pos     [3]int   `json:"pos"`
	Kind    string   `json:"kind,omitempty"`
	Axis    string   `json:"axis,omitempty"`
	Faces   []string `json:"faces,omitempty"`
	Engaged bool     `json:"engaged,omitempty"`
	Speed   float64  `json:"speed,omitempty"`
	Torque  float64  `json:"torque,omitempty"`
	Demand  float64  `json:"demand,omitempty"`
}

func (r CommandRequest) Command() (Command, error) {
	op := strings.ToUpper(strings.TrimSpace(r.Op))
	pos := geom.PosFromArray(r.Pos)
	switch op {
	case "PLACE", "RECONFIGURE":
		spec, err := SpecFromFields(pos, r.Kind, r.Axis, r.Faces, r.Engaged, r.Speed, r.Torque, r.Demand)
		if err != nil {
			return Command{}, err
		}
		kind := CmdPlace
		if op == "RECONFIGURE" {
			kind = CmdReconfigure
		}
		return Command{Kind: kind, Spec: spec}, nil
	case "BREAK":
		return Command{Kind: CmdBreak, Pos: pos}, nil
	case "SET_POWER":
		return Command{Kind: CmdSetPower, Pos: pos, Speed: r.Speed, Torque: r.Torque}, nil
	case "SET_DEMAND":
		return Command{Kind: CmdSetDemand, Pos: pos, Demand: r.Demand}, nil
	default:
		return Command{}, fmt.Errorf("unknown op %q", r.Op)
	}
}

// SpecFromFields parses the textual block description shared by the admin
// API and snapshots.
func SpecFromFields(pos geom.Pos, kind, axis string, faces []string, engaged bool, speed, torque, demand float64) (node.Spec, error) {
	k, err := node.ParseKind(kind)
	if err != nil {
		return node.Spec{}, fmt.Errorf("%w: %v", node.ErrBadSpec, err)
	}
	s := node.Spec{Kind: k, Pos: pos, Engaged: engaged, Speed: speed, Torque: torque, Demand: demand}
	if axis != "" {
		a, err := geom.ParseAxis(axis)
		if err != nil {
			return node.Spec{}, fmt.Errorf("%w: %v", node.ErrBadSpec, err)
		}
		s.Axis = a
	}
	for _, f := range faces {
		d, err := geom.ParseDirection(f)
		if err != nil {
			return node.Spec{}, fmt.Errorf("%w: %v", node.ErrBadSpec, err)
		}
		s.Faces = s.Faces.With(d)
	}
	return s, nil
}

func faceNames(s geom.DirSet) []string {
	dirs := s.Dirs()
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = d.String()
	}
	return out
}
