package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Events asks for TICK messages carrying topology events; records are
	// always streamed.
	Events bool `json:"events,omitempty"`
}

// Server -> Client. Reply to the first SUBSCRIBE.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Tick            uint64 `json:"tick"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	WorldID         string         `json:"world_id"`
	Tick            uint64         `json:"tick"`
	WorldParams     WorldParams    `json:"world_params"`
	Kinds           []string       `json:"kinds"`
	Nodes           int            `json:"nodes"`
	Networks        []NetworkState `json:"networks"`
}

type WorldParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	SyncEveryTicks   int     `json:"sync_every_ticks"`
	SyncSpeedQuantum float64 `json:"sync_speed_quantum"`
}

// NetworkState is the JSON form of a network record used by bootstrap.
type NetworkState struct {
	ID             uint64  `json:"id"`
	RequiredTorque float32 `json:"required_torque"`
	CurrentSpeed   float32 `json:"current_speed"`
	TargetSpeed    float32 `json:"target_speed"`
}

// Server -> Client. Sent on ticks that produced topology events.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Nodes    int          `json:"nodes"`
	Networks int          `json:"networks"`
	Audits   []AuditEntry `json:"audits,omitempty"`
}

type AuditEntry struct {
	Tick    uint64 `json:"tick"`
	Event   string `json:"event"`
	Network uint64 `json:"network,omitempty"`
	Other   uint64 `json:"other,omitempty"`
	Pos     [3]int `json:"pos,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Action  string `json:"action,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
