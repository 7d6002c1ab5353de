package relay

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/policy"
	"github.com/xiaot623/tgrelay/internal/tempstore"
)

// State is a step of a media batch send.
type State string

const (
	StateValidating  State = "validating"
	StateStaging     State = "staging"
	StateSending     State = "sending"
	StateReconciling State = "reconciling"
	StateCompleted   State = "completed"
)

// item is one validated attachment travelling through a batch.
type item struct {
	att    domain.Attachment
	slot   domain.Slot
	kind   domain.MediaKind
	header []byte
	path   string
}

// SendMediaBatch validates, stages and sends attachments, then records one
// message per item. Any invalid item rejects the whole batch.
func (b *Bridge) SendMediaBatch(ctx context.Context, conversationID int64, attachments []domain.Attachment) domain.Result {
	if len(attachments) == 0 {
		return domain.Fail(domain.FailureValidation, "No message or files sent")
	}
	items, res := b.validate(ctx, attachments)
	if res != nil {
		return *res
	}
	result := b.sendMedia(ctx, conversationID, items)
	b.publishSent(ctx, conversationID)
	return result
}

func (b *Bridge) validate(ctx context.Context, attachments []domain.Attachment) ([]*item, *domain.Result) {
	reject := func(format string, args ...any) ([]*item, *domain.Result) {
		r := domain.Fail(domain.FailureValidation, fmt.Sprintf(format, args...))
		return nil, &r
	}

	items := make([]*item, 0, len(attachments))
	for i, att := range attachments {
		if strings.TrimSpace(att.Name) == "" {
			return reject("File %d has no name.", i+1)
		}
		slot := slotFor(att.Name, att.MimeType)
		if slot == domain.SlotNone {
			return reject("File %s has an unsupported type.", att.Name)
		}
		if att.Size <= 0 || att.Open == nil {
			return reject("File %s is empty.", att.Name)
		}
		header, err := peek(att)
		if err != nil {
			return reject("File %s could not be read.", att.Name)
		}

		it := &item{att: att, slot: slot, header: header}
		it.kind = b.kindOf(ctx, classify.Probe{
			DeclaredName: att.Name,
			DeclaredMime: att.MimeType,
			Header:       header,
			Slot:         slot,
		})

		decision, err := b.policy.Evaluate(ctx, policy.Upload{
			Name:   att.Name,
			Kind:   it.kind,
			Size:   att.Size,
			Limits: b.cfg.Limits,
		})
		if err != nil {
			b.logger.Error().Err(err).Str("file", att.Name).Msg("upload policy failed")
			r := domain.Fail(domain.FailureInternal, "Failed to check upload policy")
			return nil, &r
		}
		if decision == policy.DecisionReject {
			if it.kind == domain.MediaKindImage || it.kind == domain.MediaKindGIF {
				return reject("Image %s is too large. Maximum size is %dMB.", att.Name, b.cfg.Limits.ImageBytes>>20)
			}
			return reject("File %s is too large. Maximum size is %dMB.", att.Name, b.cfg.Limits.FileBytes>>20)
		}
		items = append(items, it)
	}
	return items, nil
}

// kindOf classifies photo-slot items. Other slots carry their kind directly.
func (b *Bridge) kindOf(ctx context.Context, p classify.Probe) domain.MediaKind {
	if p.Slot != domain.SlotPhoto {
		return p.Slot.Kind()
	}
	return b.classifier.Classify(ctx, p)
}

func (b *Bridge) sendMedia(ctx context.Context, conversationID int64, items []*item) domain.Result {
	log := b.logger.With().Int64("user_id", conversationID).Int("items", len(items)).Logger()

	log.Debug().Str("state", string(StateStaging)).Msg("media batch")
	scope, err := b.temp.NewScope()
	if err != nil {
		log.Error().Err(err).Msg("failed to create temp scope")
		return domain.Fail(domain.FailureInternal, "Failed to stage files")
	}
	defer func() {
		if err := scope.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release temp scope")
		}
	}()
	if err := stage(scope, items); err != nil {
		log.Error().Err(err).Msg("failed to stage files")
		return domain.Fail(domain.FailureInternal, "Failed to stage files")
	}

	outbound := make([]messenger.OutboundMedia, len(items))
	for i, it := range items {
		outbound[i] = messenger.OutboundMedia{Slot: it.slot, Path: it.path}
	}

	log.Debug().Str("state", string(StateSending)).Msg("media batch")
	name, timeout := "send_media_group", b.cfg.GroupSendTimeout
	if len(items) == 1 {
		name, timeout = "send_media", b.cfg.SingleMediaTimeout
	}

	// The job holds its own reference so the files outlive an abandoned wait.
	scope.Retain()
	future, remaining, err := messenger.SubmitWithin(ctx, b.loop, name, timeout,
		func(ctx context.Context, p messenger.Platform) ([]messenger.PlatformMessage, error) {
			if len(outbound) == 1 {
				msg, err := p.SendMedia(ctx, conversationID, outbound[0])
				if err != nil {
					return nil, err
				}
				return []messenger.PlatformMessage{*msg}, nil
			}
			return p.SendMediaGroup(ctx, conversationID, outbound)
		})
	if err != nil {
		_ = scope.Release()
		log.Warn().Err(err).Msg("failed to submit media send")
		return failureResult("Failed to send media: ", err)
	}
	future.OnComplete(func([]messenger.PlatformMessage, error) {
		if err := scope.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release temp scope")
		}
	})
	future.OnLate(func(sent []messenger.PlatformMessage, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("abandoned media send failed")
			return
		}
		log.Info().Msg("abandoned media send completed, recording it")
		go b.reconcileLate(conversationID, items, sent)
	})

	sent, err := future.Await(ctx, remaining)
	if err != nil {
		log.Warn().Err(err).Str("state", string(StateCompleted)).Str("outcome", string(domain.OutcomeFailed)).Msg("media send failed")
		return failureResult("Failed to send media: ", err)
	}

	log.Debug().Str("state", string(StateReconciling)).Msg("media batch")
	outcome := b.reconcile(ctx, conversationID, items, sent)
	log.Info().Str("state", string(StateCompleted)).Str("outcome", string(outcome)).Msg("media batch")

	result := domain.Success(msgSent)
	result.Outcome = outcome
	return result
}

func stage(scope *tempstore.Scope, items []*item) error {
	for _, it := range items {
		rc, err := it.att.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", it.att.Name, err)
		}
		h, err := scope.Stage(rc, it.att.Name)
		rc.Close()
		if err != nil {
			return err
		}
		it.path = h.Path
	}
	return nil
}

func peek(att domain.Attachment) ([]byte, error) {
	rc, err := att.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return classify.ReadHeader(rc)
}

// extSlots covers media extensions missing from the system mime table.
var extSlots = map[string]domain.Slot{
	".mp4":  domain.SlotVideo,
	".mov":  domain.SlotVideo,
	".webm": domain.SlotVideo,
	".mp3":  domain.SlotAudio,
	".m4a":  domain.SlotAudio,
	".ogg":  domain.SlotAudio,
	".wav":  domain.SlotAudio,
}

// slotFor picks the transport slot from the declared mimetype, or from the file
// extension when the mimetype is missing or generic.
func slotFor(name, mimeType string) domain.Slot {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if mt == "" || mt == "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(name))
		if slot, ok := extSlots[ext]; ok {
			return slot
		}
		mt = mime.TypeByExtension(ext)
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return domain.SlotPhoto
	case strings.HasPrefix(mt, "video/"):
		return domain.SlotVideo
	case strings.HasPrefix(mt, "audio/"):
		return domain.SlotAudio
	}
	return domain.SlotNone
}
