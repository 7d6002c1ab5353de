package messenger

import (
	"github.com/xiaot623/tgrelay/internal/domain"
)

// EventKind discriminates inbound events.
type EventKind string

const (
	EventMessage     EventKind = "message"
	EventCallback    EventKind = "callback"
	EventJoinRequest EventKind = "join_request"
)

// Event is a platform-neutral inbound update.
type Event struct {
	Kind   EventKind
	From   domain.Contact
	ChatID int64

	// Message
	Text       string
	Command    string
	Attachment *MediaRef

	// Callback
	CallbackID   string
	CallbackData string

	// Join request
	ChatTitle  string
	InviteLink string
}

// IsCommand reports whether the message event is the given bot command.
func (e Event) IsCommand(name string) bool {
	return e.Kind == EventMessage && e.Command == name
}
