package relay

import (
	"context"
	"time"

	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
)

// reconcile records one message per submitted item. Results are paired with
// items by position; the declared name and mimetype of the submitted item decide
// the kind. An item that cannot be resolved is stored as a placeholder.
func (b *Bridge) reconcile(ctx context.Context, conversationID int64, items []*item, sent []messenger.PlatformMessage) domain.Outcome {
	log := b.logger.With().Int64("user_id", conversationID).Logger()
	if len(sent) != len(items) {
		log.Warn().Int("submitted", len(items)).Int("returned", len(sent)).Msg("platform returned a different number of messages")
	}

	outcome := domain.OutcomeSuccess
	for i, it := range items {
		body, resolved := domain.Placeholder(it.kind), false

		var ref *messenger.MediaRef
		if i < len(sent) {
			ref = sent[i].Media
		}
		if ref != nil && ref.Slot != domain.SlotNone && ref.Slot != it.slot {
			log.Warn().Int("index", i).Str("submitted", string(it.slot)).Str("returned", string(ref.Slot)).
				Msg("returned media slot differs from submitted slot, group may have been reordered")
		}

		if ref != nil && ref.FileID != "" {
			loc, err := messenger.Call(ctx, b.loop, "resolve_file", b.cfg.LocatorTimeout,
				func(ctx context.Context, p messenger.Platform) (*messenger.FileLocator, error) {
					return p.ResolveFile(ctx, ref.FileID)
				})
			if err != nil {
				log.Warn().Err(err).Int("index", i).Msg("failed to resolve sent file")
			} else {
				kind := b.kindOf(ctx, classify.Probe{
					DeclaredName: it.att.Name,
					DeclaredMime: it.att.MimeType,
					StoredPath:   loc.Path,
					Header:       it.header,
					Slot:         it.slot,
				})
				body, resolved = domain.Media(kind, loc.URL), true
			}
		}

		if !resolved {
			outcome = domain.OutcomePartial
		}
		if _, err := b.store.AppendMessage(ctx, conversationID, domain.RoleAdmin, body, b.now()); err != nil {
			log.Error().Err(err).Int("index", i).Msg("failed to save media message")
			outcome = domain.OutcomePartial
		}
	}
	return outcome
}

// reconcileLate records a send that finished after its caller stopped waiting.
func (b *Bridge) reconcileLate(conversationID int64, items []*item, sent []messenger.PlatformMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.LocatorTimeout*time.Duration(len(items)+1))
	defer cancel()
	outcome := b.reconcile(ctx, conversationID, items, sent)
	b.publishSent(ctx, conversationID)
	b.logger.Info().Int64("user_id", conversationID).Str("outcome", string(outcome)).Msg("late media batch recorded")
}
