// Package messenger runs the asynchronous chat-platform client loop.
package messenger

import (
	"context"

	"github.com/xiaot623/tgrelay/internal/domain"
)

// PlatformMessage is the platform's acknowledgement of a sent message.
type PlatformMessage struct {
	MessageID int
	ChatID    int64
	Media     *MediaRef
}

// MediaRef points at media stored by the platform.
type MediaRef struct {
	Slot     domain.Slot
	FileID   string
	FileName string
	MimeType string
}

// FileLocator is a resolved platform file.
type FileLocator struct {
	Path string
	URL  string
}

// OutboundMedia is one staged file to send.
type OutboundMedia struct {
	Slot    domain.Slot
	Path    string
	Caption string
}

// Button is an inline keyboard button. Exactly one of URL or CallbackData is set.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Platform is the chat platform API used by the relay. Every call blocks and must
// only be made from the loop goroutine.
type Platform interface {
	SendText(ctx context.Context, chatID int64, text string) (*PlatformMessage, error)
	// SendPrompt sends text with one inline button per row.
	SendPrompt(ctx context.Context, chatID int64, text string, buttons []Button) (*PlatformMessage, error)
	SendMedia(ctx context.Context, chatID int64, item OutboundMedia) (*PlatformMessage, error)
	// SendMediaGroup returns one message per item in submission order.
	SendMediaGroup(ctx context.Context, chatID int64, items []OutboundMedia) ([]PlatformMessage, error)
	ResolveFile(ctx context.Context, fileID string) (*FileLocator, error)
	ProfilePhotoURL(ctx context.Context, userID int64) (string, error)
	CreateInviteLink(ctx context.Context, chatID int64, name string, memberLimit int) (string, error)
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Source delivers inbound events until ctx is done.
type Source interface {
	Updates(ctx context.Context) (<-chan Event, error)
}

// Handler consumes inbound events on the loop goroutine.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}
