// Package bridge holds one builder-socket session per agent key so tool calls
// can place and break blocks without managing the websocket themselves.
package bridge

// Status is returned by mechpower.get_status.
type Status struct {
	Connected  bool   `json:"connected"`
	SessionID  string `json:"session_id,omitempty"`
	WorldID    string `json:"world_id,omitempty"`
	WorldWSURL string `json:"world_ws_url"`
	LastTick   uint64 `json:"last_tick"`
	Commands   uint64 `json:"commands"`
	Rejected   uint64 `json:"rejected"`
	LastError  string `json:"last_error,omitempty"`
}

// Kinds lists what a command may name.
type Kinds struct {
	Kinds []string `json:"kinds"`
	Axes  []string `json:"axes"`
	Faces []string `json:"faces"`
	Ops   []string `json:"ops"`
}

// CommandArgs is one block mutation, as sent on the builder socket minus the
// envelope.
type CommandArgs struct {
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

type CommandResult struct {
	ID         string `json:"id"`
	Accepted   bool   `json:"accepted"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	ServerTick uint64 `json:"server_tick,omitempty"`
}
