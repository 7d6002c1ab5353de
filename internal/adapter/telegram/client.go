// Package telegram adapts the Telegram Bot API (telego) to the messenger interfaces.
package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
)

const (
	fileBaseURL        = "https://api.telegram.org/file/bot"
	inviteNameMaxRunes = 32
	alreadyParticipant = "USER_ALREADY_PARTICIPANT"
)

// Client is a Telegram bot implementing messenger.Platform and messenger.Source.
type Client struct {
	bot         *telego.Bot
	token       string
	pollTimeout int
	logger      zerolog.Logger
}

var (
	_ messenger.Platform = (*Client)(nil)
	_ messenger.Source   = (*Client)(nil)
)

// NewClient creates a bot client for token.
func NewClient(token string, pollTimeoutSeconds int, logger zerolog.Logger) (*Client, error) {
	logger = logger.With().Str("component", "telegram").Logger()
	bot, err := telego.NewBot(token, telego.WithLogger(botLogger{
		logger:   logger,
		redactor: strings.NewReplacer(token, "<token>"),
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if pollTimeoutSeconds <= 0 {
		pollTimeoutSeconds = 30
	}
	return &Client{bot: bot, token: token, pollTimeout: pollTimeoutSeconds, logger: logger}, nil
}

// Updates starts long polling and converts updates into events.
func (c *Client) Updates(ctx context.Context) (<-chan messenger.Event, error) {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        c.pollTimeout,
		AllowedUpdates: []string{"message", "callback_query", "chat_join_request"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start long polling: %w", err)
	}

	out := make(chan messenger.Event)
	go func() {
		defer close(out)
		for update := range updates {
			ev, ok := ConvertUpdate(update)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*messenger.PlatformMessage, error) {
	msg, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return nil, err
	}
	return convertSent(msg), nil
}

func (c *Client) SendPrompt(ctx context.Context, chatID int64, text string, buttons []messenger.Button) (*messenger.PlatformMessage, error) {
	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		btn := tu.InlineKeyboardButton(b.Text)
		if b.URL != "" {
			btn = btn.WithURL(b.URL)
		} else {
			btn = btn.WithCallbackData(b.CallbackData)
		}
		rows = append(rows, tu.InlineKeyboardRow(btn))
	}
	msg, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithReplyMarkup(tu.InlineKeyboard(rows...)))
	if err != nil {
		return nil, err
	}
	return convertSent(msg), nil
}

func (c *Client) SendMedia(ctx context.Context, chatID int64, item messenger.OutboundMedia) (*messenger.PlatformMessage, error) {
	f, err := os.Open(item.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer f.Close()

	to := tu.ID(chatID)
	var msg *telego.Message
	switch item.Slot {
	case domain.SlotPhoto:
		msg, err = c.bot.SendPhoto(ctx, tu.Photo(to, tu.File(f)).WithCaption(item.Caption))
	case domain.SlotVideo:
		msg, err = c.bot.SendVideo(ctx, tu.Video(to, tu.File(f)).WithCaption(item.Caption))
	case domain.SlotAudio:
		msg, err = c.bot.SendAudio(ctx, tu.Audio(to, tu.File(f)).WithCaption(item.Caption))
	case domain.SlotVoice:
		msg, err = c.bot.SendVoice(ctx, tu.Voice(to, tu.File(f)).WithCaption(item.Caption))
	case domain.SlotAnimation:
		msg, err = c.bot.SendAnimation(ctx, tu.Animation(to, tu.File(f)).WithCaption(item.Caption))
	default:
		return nil, fmt.Errorf("unsupported media slot %q", item.Slot)
	}
	if err != nil {
		return nil, err
	}
	return convertSent(msg), nil
}

func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []messenger.OutboundMedia) ([]messenger.PlatformMessage, error) {
	media := make([]telego.InputMedia, 0, len(items))
	for _, item := range items {
		f, err := os.Open(item.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open staged file: %w", err)
		}
		defer f.Close()

		switch item.Slot {
		case domain.SlotVideo:
			media = append(media, tu.MediaVideo(tu.File(f)))
		case domain.SlotAudio, domain.SlotVoice:
			media = append(media, tu.MediaAudio(tu.File(f)))
		default:
			media = append(media, tu.MediaPhoto(tu.File(f)))
		}
	}

	sent, err := c.bot.SendMediaGroup(ctx, tu.MediaGroup(tu.ID(chatID), media...))
	if err != nil {
		return nil, err
	}
	out := make([]messenger.PlatformMessage, len(sent))
	for i := range sent {
		out[i] = *convertSent(&sent[i])
	}
	return out, nil
}

func (c *Client) ResolveFile(ctx context.Context, fileID string) (*messenger.FileLocator, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, err
	}
	return &messenger.FileLocator{Path: file.FilePath, URL: FileURL(c.token, file.FilePath)}, nil
}

func (c *Client) ProfilePhotoURL(ctx context.Context, userID int64) (string, error) {
	photos, err := c.bot.GetUserProfilePhotos(ctx, &telego.GetUserProfilePhotosParams{UserID: userID, Limit: 1})
	if err != nil {
		return "", err
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", nil
	}
	loc, err := c.ResolveFile(ctx, photos.Photos[0][0].FileID)
	if err != nil {
		return "", err
	}
	return loc.URL, nil
}

func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, name string, memberLimit int) (string, error) {
	link, err := c.bot.CreateChatInviteLink(ctx, &telego.CreateChatInviteLinkParams{
		ChatID:      tu.ID(chatID),
		Name:        truncateRunes(name, inviteNameMaxRunes),
		MemberLimit: memberLimit,
	})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

func (c *Client) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	err := c.bot.ApproveChatJoinRequest(ctx, &telego.ApproveChatJoinRequestParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil && strings.Contains(err.Error(), alreadyParticipant) {
		return fmt.Errorf("%w: %v", messenger.ErrAlreadyParticipant, err)
	}
	return err
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(callbackID))
}

// FileURL builds the download URL for a file path returned by getFile.
func FileURL(token, path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return fileBaseURL + token + "/" + path
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

type botLogger struct {
	logger   zerolog.Logger
	redactor *strings.Replacer
}

func (l botLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msg(l.redactor.Replace(fmt.Sprintf(format, args...)))
}

func (l botLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msg(l.redactor.Replace(fmt.Sprintf(format, args...)))
}
