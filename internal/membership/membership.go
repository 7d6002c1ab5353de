// Package membership runs channel onboarding and join-request approval.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
	store "github.com/xiaot623/tgrelay/internal/repository"
)

// CallbackJoined is the callback data of the "I have joined" button.
const CallbackJoined = "joined_channel"

// DefaultWelcomeText is sent after a join request is approved.
const DefaultWelcomeText = "🎉 Hi {mention}, you are now a member of {title}!"

const (
	textInviteFailed = "❌ Sorry, could not generate your invite link. Please contact admin."
	textThanks       = "🎉 Thank you for joining our channel!\n\nYou are now a full member. You can chat with me here anytime."
)

// Config identifies the channel users are invited to.
type Config struct {
	ChannelID   int64
	WelcomeText string
}

// Service drives onboarding. All methods run on the messenger loop and call
// the platform directly.
type Service struct {
	platform messenger.Platform
	store    store.Store
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func New(platform messenger.Platform, st store.Store, cfg Config, logger zerolog.Logger) *Service {
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = DefaultWelcomeText
	}
	return &Service{
		platform: platform,
		store:    st,
		cfg:      cfg,
		logger:   logger.With().Str("component", "membership").Logger(),
		now:      time.Now,
	}
}

// Enabled reports whether a channel is configured.
func (s *Service) Enabled() bool {
	return s.cfg.ChannelID != 0
}

// Welcome creates a one-use invite link for c, stores it and sends the join prompt.
func (s *Service) Welcome(ctx context.Context, c domain.Contact) error {
	if !s.Enabled() {
		return nil
	}
	name := fmt.Sprintf("%s (%d)", c.FullName(), c.ID)
	link, err := s.platform.CreateInviteLink(ctx, s.cfg.ChannelID, name, 1)
	if err != nil || link == "" {
		s.logger.Warn().Err(err).Int64("user_id", c.ID).Msg("failed to create invite link")
		if _, serr := s.platform.SendText(ctx, c.ID, textInviteFailed); serr != nil {
			return fmt.Errorf("failed to send invite failure notice: %w", serr)
		}
		return nil
	}

	if _, err := s.store.SetInviteLink(ctx, c.ID, link); err != nil {
		s.logger.Error().Err(err).Int64("user_id", c.ID).Msg("failed to store invite link")
	}

	text := "👋 Welcome!\n\n" +
		"To access all features, please join our channel first.\n" +
		link + "\n\n" +
		"After joining, click the button below."
	buttons := []messenger.Button{
		{Text: "Join Channel", URL: link},
		{Text: "I have joined", CallbackData: CallbackJoined},
	}
	if _, err := s.platform.SendPrompt(ctx, c.ID, text, buttons); err != nil {
		return fmt.Errorf("failed to send join prompt: %w", err)
	}
	return nil
}

// Joined acknowledges the "I have joined" button.
func (s *Service) Joined(ctx context.Context, ev messenger.Event) error {
	if err := s.platform.AnswerCallback(ctx, ev.CallbackID); err != nil {
		s.logger.Debug().Err(err).Msg("failed to answer callback")
	}
	if _, err := s.platform.SendText(ctx, ev.From.ID, textThanks); err != nil {
		return fmt.Errorf("failed to send thanks: %w", err)
	}
	return nil
}

// ApproveJoin approves a channel join request, records the user and sends the
// welcome DM. A user who is already a member is not an error.
func (s *Service) ApproveJoin(ctx context.Context, ev messenger.Event) error {
	if s.Enabled() && ev.ChatID != s.cfg.ChannelID {
		s.logger.Debug().Int64("chat_id", ev.ChatID).Msg("ignoring join request for another chat")
		return nil
	}
	log := s.logger.With().Int64("user_id", ev.From.ID).Str("chat", ev.ChatTitle).Logger()

	if err := s.platform.ApproveJoinRequest(ctx, ev.ChatID, ev.From.ID); err != nil {
		if errors.Is(err, messenger.ErrAlreadyParticipant) {
			log.Info().Msg("user is already a participant")
			return nil
		}
		return fmt.Errorf("failed to approve join request: %w", err)
	}
	log.Info().Msg("join request approved")

	user := &domain.User{
		ID:         ev.From.ID,
		FullName:   ev.From.FullName(),
		Username:   ev.From.Username,
		JoinDate:   s.now(),
		InviteLink: ev.InviteLink,
	}
	wasNew, err := s.store.UpsertUser(ctx, user)
	if err != nil {
		log.Error().Err(err).Msg("failed to save user")
	} else if !wasNew && ev.InviteLink != "" {
		if _, err := s.store.SetInviteLink(ctx, ev.From.ID, ev.InviteLink); err != nil {
			log.Error().Err(err).Msg("failed to store invite link")
		}
	}

	if _, err := s.platform.SendText(ctx, ev.From.ID, s.welcomeText(ev)); err != nil {
		log.Warn().Err(err).Msg("failed to send welcome message")
	}
	return nil
}

func (s *Service) welcomeText(ev messenger.Event) string {
	return strings.NewReplacer(
		"{mention}", mention(ev.From),
		"{title}", ev.ChatTitle,
	).Replace(s.cfg.WelcomeText)
}

func mention(c domain.Contact) string {
	if c.Username != "" {
		return "@" + c.Username
	}
	if c.FirstName != "" {
		return c.FirstName
	}
	return c.FullName()
}
