package relay

import (
	"context"
	"strings"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
)

const msgSent = "Message sent successfully"

// SendText records an admin text and delivers it. The stored message is kept even
// when delivery fails or times out.
func (b *Bridge) SendText(ctx context.Context, conversationID int64, text string) domain.Result {
	if strings.TrimSpace(text) == "" {
		return domain.Fail(domain.FailureValidation, "Message is required")
	}
	result := b.sendText(ctx, conversationID, text)
	b.publishSent(ctx, conversationID)
	return result
}

func (b *Bridge) sendText(ctx context.Context, conversationID int64, text string) domain.Result {
	if _, err := b.store.AppendMessage(ctx, conversationID, domain.RoleAdmin, domain.Text(text), b.now()); err != nil {
		b.logger.Error().Err(err).Int64("user_id", conversationID).Msg("failed to save admin message")
		return domain.Fail(domain.FailureInternal, "Failed to save message")
	}

	_, err := messenger.Call(ctx, b.loop, "send_text", b.cfg.SendTimeout,
		func(ctx context.Context, p messenger.Platform) (*messenger.PlatformMessage, error) {
			return p.SendText(ctx, conversationID, text)
		})
	if err != nil {
		b.logger.Warn().Err(err).Int64("user_id", conversationID).Msg("text send failed")
		return failureResult("Failed to send message: ", err)
	}
	return domain.Success(msgSent)
}

// SendBatch sends optional text followed by optional attachments. Attachments are
// validated before anything is stored or sent.
func (b *Bridge) SendBatch(ctx context.Context, conversationID int64, text string, attachments []domain.Attachment) domain.Result {
	hasText := strings.TrimSpace(text) != ""
	if !hasText && len(attachments) == 0 {
		return domain.Fail(domain.FailureValidation, "No message or files sent")
	}

	var items []*item
	if len(attachments) > 0 {
		var res *domain.Result
		items, res = b.validate(ctx, attachments)
		if res != nil {
			return *res
		}
	}

	result := domain.Success(msgSent)
	if hasText {
		result = b.sendText(ctx, conversationID, text)
		if !result.OK() {
			b.publishSent(ctx, conversationID)
			return result
		}
	}
	if len(items) > 0 {
		result = b.sendMedia(ctx, conversationID, items)
	}
	b.publishSent(ctx, conversationID)
	return result
}
