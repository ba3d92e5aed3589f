package relay

// MessageType defines the type of a server-to-client WebSocket frame.
type MessageType string

const (
	// TypeHello is sent once after the upgrade with the session id.
	TypeHello MessageType = "hello"

	// TypeAck answers one control message: applied, ignored, or error.
	TypeAck MessageType = "ack"

	// TypeGroup is broadcast to every client when an exclusive group
	// changes ownership, so UIs can grey out buttons another device
	// is holding.
	TypeGroup MessageType = "group"
)

// Ack statuses beyond the arbiter's applied/ignored.
const statusError = "error"

// ControlMessage is one client-originated control action. The session
// is implicit per connection.
type ControlMessage struct {
	Action string `json:"action"`
	Phase  string `json:"phase"`
}

// ServerMessage is the generic container for all server-to-client
// frames. Unused fields are omitted per type.
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Action  string      `json:"action,omitempty"`
	Status  string      `json:"status,omitempty"` // "applied" | "ignored" | "error"
	Reason  string      `json:"reason,omitempty"`
	Session string      `json:"session,omitempty"` // hello
	Group   string      `json:"group,omitempty"`   // group event
	Owner   string      `json:"owner,omitempty"`   // holding session id, "" when idle
}
