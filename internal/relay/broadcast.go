package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
)

// BroadcastReport summarises a broadcast. Delivery is not awaited.
type BroadcastReport struct {
	Total     int `json:"total"`
	Submitted int `json:"count"`
	Failed    int `json:"failed"`
}

// Broadcast records text for every known user and hands the sends to a
// background feeder without waiting for delivery. The feeder keeps at most one
// broadcast send on the loop at a time so interactive sends are not starved.
func (b *Bridge) Broadcast(ctx context.Context, text string) (BroadcastReport, error) {
	var report BroadcastReport
	if strings.TrimSpace(text) == "" {
		return report, fmt.Errorf("%w: message is required", ErrValidation)
	}

	ids, err := b.store.ListUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	report.Total = len(ids)

	recipients := make([]int64, 0, len(ids))
	for _, userID := range ids {
		if _, err := b.store.AppendMessage(ctx, userID, domain.RoleAdmin, domain.Text(text), b.now()); err != nil {
			b.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to save broadcast message")
			report.Failed++
			continue
		}
		recipients = append(recipients, userID)
		b.publishSent(ctx, userID)
	}
	report.Submitted = len(recipients)

	if len(recipients) > 0 {
		go b.feedBroadcast(recipients, text)
	}

	b.logger.Info().Int("total", report.Total).Int("submitted", report.Submitted).Int("failed", report.Failed).Msg("broadcast queued")
	return report, nil
}

// feedBroadcast sends text to each recipient in turn. It outlives the request
// that started it and stops when the loop does.
func (b *Bridge) feedBroadcast(recipients []int64, text string) {
	ctx := context.Background()
	var failed int
	for i, userID := range recipients {
		id := userID
		_, err := messenger.Call(ctx, b.loop, "broadcast_text", b.cfg.SendTimeout,
			func(ctx context.Context, p messenger.Platform) (*messenger.PlatformMessage, error) {
				return p.SendText(ctx, id, text)
			})
		if errors.Is(err, messenger.ErrLoopStopped) {
			b.logger.Warn().Int("remaining", len(recipients)-i).Msg("broadcast stopped, loop is not running")
			return
		}
		if err != nil {
			failed++
			b.logger.Warn().Err(err).Int64("user_id", id).Msg("broadcast send failed")
		}
	}
	b.logger.Info().Int("sent", len(recipients)-failed).Int("failed", failed).Msg("broadcast finished")
}
