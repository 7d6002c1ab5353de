// Package notify publishes real-time events to dashboard clients.
package notify

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// DashboardRoom receives every inbound message notification.
const DashboardRoom = "dashboard"

// Room returns the room name of a conversation.
func Room(conversationID int64) string {
	return "chat_" + strconv.FormatInt(conversationID, 10)
}

// Sink is a fire-and-forget publish channel. Errors are informational only.
type Sink interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Ts      int64  `json:"ts"`
	Payload any    `json:"data,omitempty"`
}

// NewEnvelope stamps an event with the current time.
func NewEnvelope(room, event string, payload any) Envelope {
	return Envelope{Type: event, Room: room, Ts: time.Now().UnixMilli(), Payload: payload}
}

// Multi fans a publish out to several sinks.
type Multi []Sink

// Publish publishes to every sink and joins their errors.
func (m Multi) Publish(ctx context.Context, room, event string, payload any) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, room, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
	Err    error
}

func (r *Recorder) Publish(_ context.Context, room, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, NewEnvelope(room, event, payload))
	return r.Err
}

// Events returns a copy of the recorded envelopes.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events named event were published to room.
func (r *Recorder) Count(room, event string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Room == room && e.Type == event {
			n++
		}
	}
	return n
}
