// Package inbound records messages end-users send to the bot.
package inbound

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/membership"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/notify"
	"github.com/xiaot623/tgrelay/internal/presence"
	store "github.com/xiaot623/tgrelay/internal/repository"
)

const (
	commandStart    = "start"
	textWelcomeBack = "👋 Welcome back! You can chat with me here anytime."
)

// Handler processes inbound events on the messenger loop.
type Handler struct {
	platform   messenger.Platform
	store      store.Store
	sink       notify.Sink
	presence   presence.Tracker
	classifier *classify.Classifier
	membership *membership.Service
	logger     zerolog.Logger
	now        func() time.Time
}

var _ messenger.Handler = (*Handler)(nil)

func New(platform messenger.Platform, st store.Store, sink notify.Sink, tracker presence.Tracker, classifier *classify.Classifier, members *membership.Service, logger zerolog.Logger) *Handler {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Handler{
		platform:   platform,
		store:      st,
		sink:       sink,
		presence:   tracker,
		classifier: classifier,
		membership: members,
		logger:     logger.With().Str("component", "inbound").Logger(),
		now:        time.Now,
	}
}

// HandleEvent dispatches one inbound event.
func (h *Handler) HandleEvent(ctx context.Context, ev messenger.Event) {
	var err error
	switch ev.Kind {
	case messenger.EventMessage:
		err = h.handleMessage(ctx, ev)
	case messenger.EventCallback:
		err = h.handleCallback(ctx, ev)
	case messenger.EventJoinRequest:
		err = h.membership.ApproveJoin(ctx, ev)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(ev.Kind)).Int64("user_id", ev.From.ID).Msg("failed to handle event")
	}
}

func (h *Handler) handleMessage(ctx context.Context, ev messenger.Event) error {
	c := ev.From
	wasNew, err := h.upsertUser(ctx, c)
	if err != nil {
		return err
	}

	if ev.Command != "" {
		if !ev.IsCommand(commandStart) {
			return nil
		}
		if wasNew {
			return h.membership.Welcome(ctx, c)
		}
		if _, err := h.platform.SendText(ctx, c.ID, textWelcomeBack); err != nil {
			return err
		}
		return nil
	}

	if wasNew {
		if err := h.membership.Welcome(ctx, c); err != nil {
			h.logger.Warn().Err(err).Int64("user_id", c.ID).Msg("onboarding failed")
		}
	}

	var bodies []domain.Body
	if ev.Attachment != nil {
		bodies = append(bodies, h.mediaBody(ctx, ev.Attachment))
	}
	if ev.Text != "" {
		bodies = append(bodies, domain.Text(ev.Text))
	}
	if len(bodies) == 0 {
		return nil
	}

	for _, body := range bodies {
		if _, err := h.store.AppendMessage(ctx, c.ID, domain.RoleUser, body, h.now()); err != nil {
			return err
		}
	}
	if err := h.presence.Touch(ctx, c.ID); err != nil {
		h.logger.Debug().Err(err).Int64("user_id", c.ID).Msg("failed to touch presence")
	}

	summary := domain.UserSummary{UserID: c.ID, FullName: c.FullName(), Username: c.Username}
	for _, room := range []string{notify.Room(c.ID), notify.DashboardRoom} {
		if err := h.sink.Publish(ctx, room, domain.EventNewMessage, summary); err != nil {
			h.logger.Warn().Err(err).Str("room", room).Msg("failed to publish notification")
		}
	}
	return nil
}

// upsertUser inserts the user on first contact. The profile photo is only
// looked up for users not seen before.
func (h *Handler) upsertUser(ctx context.Context, c domain.Contact) (bool, error) {
	existing, err := h.store.GetUser(ctx, c.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	photo, perr := h.platform.ProfilePhotoURL(ctx, c.ID)
	if perr != nil {
		h.logger.Debug().Err(perr).Int64("user_id", c.ID).Msg("profile photo lookup failed")
	}
	return h.store.UpsertUser(ctx, &domain.User{
		ID:       c.ID,
		FullName: c.FullName(),
		Username: c.Username,
		JoinDate: h.now(),
		PhotoURL: photo,
	})
}

// mediaBody resolves and classifies an attachment. A failed resolve stores a
// placeholder of the slot's kind.
func (h *Handler) mediaBody(ctx context.Context, ref *messenger.MediaRef) domain.Body {
	loc, err := h.platform.ResolveFile(ctx, ref.FileID)
	if err != nil {
		h.logger.Warn().Err(err).Str("file_id", ref.FileID).Msg("failed to resolve file")
		return domain.Placeholder(ref.Slot.Kind())
	}

	kind := ref.Slot.Kind()
	if ref.Slot == domain.SlotPhoto || ref.Slot == domain.SlotAnimation {
		kind = h.classifier.Classify(ctx, classify.Probe{
			DeclaredName: ref.FileName,
			DeclaredMime: ref.MimeType,
			StoredPath:   loc.Path,
			URL:          loc.URL,
			Slot:         ref.Slot,
		})
	}
	return domain.Media(kind, loc.URL)
}

func (h *Handler) handleCallback(ctx context.Context, ev messenger.Event) error {
	if ev.CallbackData == membership.CallbackJoined {
		return h.membership.Joined(ctx, ev)
	}
	return h.platform.AnswerCallback(ctx, ev.CallbackID)
}
