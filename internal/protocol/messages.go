package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// MaxQueue bounds the ACKs buffered for a slow client.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz          int `json:"tick_rate_hz"`
	InvalidRecheckTicks int `json:"invalid_recheck_ticks"`
}

// CMD (client -> server): one block mutation.
type CmdMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Op              string   `json:"op"`
	Pos             [3]int   `json:"pos"`
	Kind            string   `json:"kind,omitempty"`
	Axis            string   `json:"axis,omitempty"`
	Faces           []string `json:"faces,omitempty"`
	Engaged         bool     `json:"engaged,omitempty"`
	Speed           float64  `json:"speed,omitempty"`
	Torque          float64  `json:"torque,omitempty"`
	Demand          float64  `json:"demand,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
	WorldID         string `json:"world_id,omitempty"`
}
