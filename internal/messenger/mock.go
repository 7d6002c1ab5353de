package messenger

import (
	"context"
	"fmt"
	"sync"
)

// MockPlatform is an in-memory Platform for tests. Any *Func field that is set
// overrides the default behaviour of that method.
type MockPlatform struct {
	mu     sync.Mutex
	nextID int
	calls  []MockCall

	SendTextFunc       func(ctx context.Context, chatID int64, text string) (*PlatformMessage, error)
	SendMediaFunc      func(ctx context.Context, chatID int64, item OutboundMedia) (*PlatformMessage, error)
	SendMediaGroupFunc func(ctx context.Context, chatID int64, items []OutboundMedia) ([]PlatformMessage, error)
	ResolveFileFunc    func(ctx context.Context, fileID string) (*FileLocator, error)
	ProfilePhotoFunc   func(ctx context.Context, userID int64) (string, error)
	InviteLinkFunc     func(ctx context.Context, chatID int64, name string, memberLimit int) (string, error)
	ApproveFunc        func(ctx context.Context, chatID, userID int64) error
}

// MockCall records one platform call.
type MockCall struct {
	Method  string
	ChatID  int64
	Text    string
	Items   []OutboundMedia
	Buttons []Button
}

// Ensure MockPlatform implements Platform interface.
var _ Platform = (*MockPlatform)(nil)

// NewMockPlatform creates a mock platform.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{}
}

// Calls returns a copy of the recorded calls.
func (m *MockPlatform) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls of one method.
func (m *MockPlatform) CallsTo(method string) []MockCall {
	var out []MockCall
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockPlatform) record(c MockCall) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	m.nextID++
	return m.nextID
}

func (m *MockPlatform) SendText(ctx context.Context, chatID int64, text string) (*PlatformMessage, error) {
	id := m.record(MockCall{Method: "SendText", ChatID: chatID, Text: text})
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, chatID, text)
	}
	return &PlatformMessage{MessageID: id, ChatID: chatID}, nil
}

func (m *MockPlatform) SendPrompt(ctx context.Context, chatID int64, text string, buttons []Button) (*PlatformMessage, error) {
	id := m.record(MockCall{Method: "SendPrompt", ChatID: chatID, Text: text, Buttons: buttons})
	return &PlatformMessage{MessageID: id, ChatID: chatID}, nil
}

func (m *MockPlatform) SendMedia(ctx context.Context, chatID int64, item OutboundMedia) (*PlatformMessage, error) {
	id := m.record(MockCall{Method: "SendMedia", ChatID: chatID, Items: []OutboundMedia{item}})
	if m.SendMediaFunc != nil {
		return m.SendMediaFunc(ctx, chatID, item)
	}
	return mediaMessage(id, chatID, item), nil
}

func (m *MockPlatform) SendMediaGroup(ctx context.Context, chatID int64, items []OutboundMedia) ([]PlatformMessage, error) {
	id := m.record(MockCall{Method: "SendMediaGroup", ChatID: chatID, Items: items})
	if m.SendMediaGroupFunc != nil {
		return m.SendMediaGroupFunc(ctx, chatID, items)
	}
	out := make([]PlatformMessage, len(items))
	for i, item := range items {
		out[i] = *mediaMessage(id*100+i, chatID, item)
	}
	return out, nil
}

func (m *MockPlatform) ResolveFile(ctx context.Context, fileID string) (*FileLocator, error) {
	m.record(MockCall{Method: "ResolveFile", Text: fileID})
	if m.ResolveFileFunc != nil {
		return m.ResolveFileFunc(ctx, fileID)
	}
	path := "files/" + fileID
	return &FileLocator{Path: path, URL: "https://files.example/" + path}, nil
}

func (m *MockPlatform) ProfilePhotoURL(ctx context.Context, userID int64) (string, error) {
	m.record(MockCall{Method: "ProfilePhotoURL", ChatID: userID})
	if m.ProfilePhotoFunc != nil {
		return m.ProfilePhotoFunc(ctx, userID)
	}
	return "", nil
}

func (m *MockPlatform) CreateInviteLink(ctx context.Context, chatID int64, name string, memberLimit int) (string, error) {
	id := m.record(MockCall{Method: "CreateInviteLink", ChatID: chatID, Text: name})
	if m.InviteLinkFunc != nil {
		return m.InviteLinkFunc(ctx, chatID, name, memberLimit)
	}
	return fmt.Sprintf("https://t.me/+invite%d", id), nil
}

func (m *MockPlatform) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	m.record(MockCall{Method: "ApproveJoinRequest", ChatID: chatID, Text: fmt.Sprint(userID)})
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, chatID, userID)
	}
	return nil
}

func (m *MockPlatform) AnswerCallback(ctx context.Context, callbackID string) error {
	m.record(MockCall{Method: "AnswerCallback", Text: callbackID})
	return nil
}

func mediaMessage(id int, chatID int64, item OutboundMedia) *PlatformMessage {
	return &PlatformMessage{
		MessageID: id,
		ChatID:    chatID,
		Media:     &MediaRef{Slot: item.Slot, FileID: fmt.Sprintf("file-%d", id)},
	}
}

// ChanSource is a Source fed by Push.
type ChanSource struct {
	ch chan Event
}

// NewChanSource creates a source with the given buffer.
func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{ch: make(chan Event, buffer)}
}

// Push delivers an event.
func (s *ChanSource) Push(ev Event) {
	s.ch <- ev
}

// Updates returns the event channel.
func (s *ChanSource) Updates(ctx context.Context) (<-chan Event, error) {
	return s.ch, nil
}
