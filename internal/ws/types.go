package ws

// OpCode identifies the kind of frame on the session channel.
type OpCode int

// ProtocolVersion is the exact server/client WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - Events with a type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Client)
	OpHello          OpCode = 1 // Sent on connection
	OpReady          OpCode = 2 // Sent once the client is registered
	OpInvalidSession OpCode = 3 // Session revoked, client must sign in again
)

// Event types (Server -> Client via DISPATCH)
const (
	EventRoleChanged = "ROLE_CHANGED"
)

// Reasons carried by INVALID_SESSION that originate in the hub. Revocations
// pass their own reason through.
const (
	ReasonTooManySessions = "too_many_sessions"
	ReasonShutdown        = "shutdown"
)

type WSMessage struct {
	Op   OpCode `json:"op"`
	Type string `json:"t,omitempty"` // Event type (only for DISPATCH)
	Data any    `json:"d,omitempty"`
}

type HelloPayload struct {
	HeartbeatIntervalMs int64 `json:"heartbeat_interval_ms"`
}

type ReadyPayload struct {
	ProtocolVersion int    `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	Role            string `json:"role"`
}

// InvalidSessionPayload sent when the user's sessions were revoked
type InvalidSessionPayload struct {
	Reason    string `json:"reason"`
	Resumable bool   `json:"resumable"`
}

type RoleChangedPayload struct {
	Role string `json:"role"`
}
