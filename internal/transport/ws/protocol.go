package ws

// Message types from client to server
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypePing  = "ping"
)

// Message types from server to client. Relay events reuse notify.Envelope.
const (
	TypeJoined = "joined"
	TypeLeft   = "left"
	TypePong   = "pong"
	TypeError  = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage = "INVALID_MESSAGE"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
)

// BaseMessage contains common fields for all control messages.
type BaseMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts,omitempty"`
	Room string `json:"room,omitempty"`
}

// RoomMessage asks to join or leave a room.
type RoomMessage struct {
	BaseMessage
}

// ErrorMessage reports a rejected control message.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
