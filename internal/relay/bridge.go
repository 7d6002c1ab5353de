// Package relay carries admin sends from synchronous callers onto the messenger
// loop and records what was sent.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/notify"
	"github.com/xiaot623/tgrelay/internal/policy"
	store "github.com/xiaot623/tgrelay/internal/repository"
	"github.com/xiaot623/tgrelay/internal/tempstore"
)

// ErrValidation marks input rejected before any platform call.
var ErrValidation = errors.New("relay: validation failed")

// Config bounds every wait on the messenger loop.
type Config struct {
	SendTimeout        time.Duration
	SingleMediaTimeout time.Duration
	GroupSendTimeout   time.Duration
	LocatorTimeout     time.Duration
	Limits             policy.Limits
}

// DefaultConfig returns the production bounds and upload limits.
func DefaultConfig() Config {
	return Config{
		SendTimeout:        30 * time.Second,
		SingleMediaTimeout: 60 * time.Second,
		GroupSendTimeout:   120 * time.Second,
		LocatorTimeout:     30 * time.Second,
		Limits:             policy.Limits{ImageBytes: 20 << 20, FileBytes: 50 << 20},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.SingleMediaTimeout <= 0 {
		c.SingleMediaTimeout = d.SingleMediaTimeout
	}
	if c.GroupSendTimeout <= 0 {
		c.GroupSendTimeout = d.GroupSendTimeout
	}
	if c.LocatorTimeout <= 0 {
		c.LocatorTimeout = d.LocatorTimeout
	}
	if c.Limits.ImageBytes <= 0 {
		c.Limits.ImageBytes = d.Limits.ImageBytes
	}
	if c.Limits.FileBytes <= 0 {
		c.Limits.FileBytes = d.Limits.FileBytes
	}
	return c
}

// Bridge is the only path from admin requests to the messenger loop.
type Bridge struct {
	loop       *messenger.Loop
	store      store.Store
	sink       notify.Sink
	temp       *tempstore.Store
	classifier *classify.Classifier
	policy     *policy.Engine
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

func NewBridge(loop *messenger.Loop, st store.Store, sink notify.Sink, temp *tempstore.Store, classifier *classify.Classifier, engine *policy.Engine, cfg Config, logger zerolog.Logger) *Bridge {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Bridge{
		loop:       loop,
		store:      st,
		sink:       sink,
		temp:       temp,
		classifier: classifier,
		policy:     engine,
		cfg:        cfg.withDefaults(),
		logger:     logger.With().Str("component", "relay").Logger(),
		now:        time.Now,
	}
}

// sentPayload is published after every admin send.
type sentPayload struct {
	UserID int64 `json:"user_id"`
}

// publishSent notifies the conversation room. Errors are logged only.
func (b *Bridge) publishSent(ctx context.Context, conversationID int64) {
	room := notify.Room(conversationID)
	payload := sentPayload{UserID: conversationID}
	for _, event := range []string{domain.EventNewMessage, domain.EventAdminMessageSent} {
		if err := b.sink.Publish(ctx, room, event, payload); err != nil {
			b.logger.Warn().Err(err).Str("room", room).Str("event", event).Msg("failed to publish notification")
		}
	}
}

// failureResult maps a loop error to a caller-facing result.
func failureResult(prefix string, err error) domain.Result {
	switch {
	case errors.Is(err, messenger.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.Fail(domain.FailureTimeout, prefix+"timed out waiting for Telegram")
	case errors.Is(err, messenger.ErrLoopStopped):
		return domain.Fail(domain.FailurePlatform, prefix+"bot is not running")
	default:
		return domain.Fail(domain.FailurePlatform, prefix+err.Error())
	}
}
