package telegram

import (
	"strings"

	"github.com/mymmrac/telego"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
)

const chatTypePrivate = "private"

// ConvertUpdate maps a Telegram update onto a messenger event. Updates the relay
// does not handle are reported with ok=false.
func ConvertUpdate(u telego.Update) (messenger.Event, bool) {
	switch {
	case u.Message != nil:
		return convertMessage(u.Message)
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		return messenger.Event{
			Kind:         messenger.EventCallback,
			From:         contact(q.From),
			ChatID:       q.From.ID,
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}, true
	case u.ChatJoinRequest != nil:
		r := u.ChatJoinRequest
		ev := messenger.Event{
			Kind:      messenger.EventJoinRequest,
			From:      contact(r.From),
			ChatID:    r.Chat.ID,
			ChatTitle: r.Chat.Title,
		}
		if r.InviteLink != nil {
			ev.InviteLink = r.InviteLink.InviteLink
		}
		return ev, true
	}
	return messenger.Event{}, false
}

func convertMessage(m *telego.Message) (messenger.Event, bool) {
	if m.From == nil || m.From.IsBot || m.Chat.Type != chatTypePrivate {
		return messenger.Event{}, false
	}
	ev := messenger.Event{
		Kind:       messenger.EventMessage,
		From:       contact(*m.From),
		ChatID:     m.Chat.ID,
		Text:       m.Text,
		Attachment: attachmentOf(m),
	}
	if ev.Attachment != nil && ev.Text == "" {
		ev.Text = m.Caption
	}
	if strings.HasPrefix(m.Text, "/") {
		ev.Command = commandName(m.Text)
	}
	if ev.Text == "" && ev.Attachment == nil {
		return messenger.Event{}, false
	}
	return ev, true
}

// attachmentOf picks the media slot of a message. Animation is checked first because
// Telegram also fills Document for animations.
func attachmentOf(m *telego.Message) *messenger.MediaRef {
	switch {
	case m.Animation != nil:
		return &messenger.MediaRef{Slot: domain.SlotAnimation, FileID: m.Animation.FileID, FileName: m.Animation.FileName, MimeType: m.Animation.MimeType}
	case len(m.Photo) > 0:
		largest := m.Photo[len(m.Photo)-1]
		return &messenger.MediaRef{Slot: domain.SlotPhoto, FileID: largest.FileID}
	case m.Video != nil:
		return &messenger.MediaRef{Slot: domain.SlotVideo, FileID: m.Video.FileID, FileName: m.Video.FileName, MimeType: m.Video.MimeType}
	case m.Voice != nil:
		return &messenger.MediaRef{Slot: domain.SlotVoice, FileID: m.Voice.FileID, MimeType: m.Voice.MimeType}
	case m.Audio != nil:
		return &messenger.MediaRef{Slot: domain.SlotAudio, FileID: m.Audio.FileID, FileName: m.Audio.FileName, MimeType: m.Audio.MimeType}
	}
	return nil
}

func convertSent(m *telego.Message) *messenger.PlatformMessage {
	return &messenger.PlatformMessage{
		MessageID: m.MessageID,
		ChatID:    m.Chat.ID,
		Media:     attachmentOf(m),
	}
}

func contact(u telego.User) domain.Contact {
	return domain.Contact{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}

// commandName extracts "start" from "/start@my_bot payload".
func commandName(text string) string {
	word := strings.Fields(text)[0]
	word = strings.TrimPrefix(word, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}
