package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/social"
	"github.com/tkaraden/sealbird/internal/store"
)

// Publisher pushes generated replies to the social network and seals
// them on-chain. The two phases are separated by the published status so
// a crash between them can neither lose nor double a reply.
type Publisher struct {
	store   *store.Store
	social  social.Poster
	gateway chain.Gateway
	batch   int
	every   time.Duration
	logger  *slog.Logger
}

// NewPublisher creates the publication worker.
func NewPublisher(s *store.Store, poster social.Poster, gateway chain.Gateway, batch int, every time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:   s,
		social:  poster,
		gateway: gateway,
		batch:   batch,
		every:   every,
		logger:  logger.With("component", "publisher"),
	}
}

func (w *Publisher) Name() string { return "publisher" }

func (w *Publisher) Interval() time.Duration { return w.every }

// Process runs both publication phases.
func (w *Publisher) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	// Phase A: post pending replies. Without credentials items stay
	// pending untouched.
	if w.social.IsConfigured() {
		items, err := w.store.ListPubItems(w.batch, models.PubStatusPending)
		if err != nil {
			return out, fmt.Errorf("list pending items: %w", err)
		}
		for _, item := range items {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if err := w.publish(ctx, item); err != nil {
				w.logger.Error("publish reply", "id", item.ID, "error", err)
				out.Failed++
				continue
			}
			out.Succeeded++
		}
	}

	// Phase B: seal published replies on-chain.
	items, err := w.store.ListPubItems(w.batch, models.PubStatusPublished)
	if err != nil {
		return out, fmt.Errorf("list published items: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err := w.record(ctx, item); err != nil {
			w.logger.Error("record reply", "id", item.ID, "error", err)
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out, nil
}

func (w *Publisher) publish(ctx context.Context, item models.PubQueueItem) error {
	replyPostID, err := w.social.PostReply(ctx, item.SourcePostID, item.ReplyContent)
	if err != nil {
		// Posting is not idempotent; a blind retry could double-post.
		w.fail(item.ID, fmt.Sprintf("social publish: %v", err))
		return fmt.Errorf("post reply: %w", err)
	}

	hash := sha256.Sum256([]byte(item.ReplyContent))
	if err := w.store.MarkPublished(item.ID, replyPostID, hex.EncodeToString(hash[:])); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (w *Publisher) record(ctx context.Context, item models.PubQueueItem) error {
	exists, err := w.gateway.HasResponse(ctx, item.SourcePostID)
	if err != nil {
		// Transient lookup failure; the item stays published for the next
		// tick.
		return fmt.Errorf("registry lookup: %w", err)
	}
	if exists {
		w.logger.Warn("registry already records a response", "id", item.ID, "source_post_id", item.SourcePostID)
		w.fail(item.ID, "registry already records a response for this post")
		return nil
	}

	height, err := w.gateway.CurrentBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("current height: %w", err)
	}

	hash, err := decodeContentHash(item.ContentHash)
	if err != nil {
		w.fail(item.ID, fmt.Sprintf("bad content hash: %v", err))
		return nil
	}

	txHash, err := w.gateway.SubmitRecordResponse(ctx, item.ReplyPostID, item.SourcePostID, hash)
	if err != nil {
		// The transaction may or may not have broadcast; never blind-retry
		// a submission.
		w.fail(item.ID, fmt.Sprintf("submit: %v", err))
		return fmt.Errorf("submit record: %w", err)
	}

	if err := w.store.MarkTxSubmitted(item.ID, txHash, height); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("mark tx submitted: %w", err)
	}
	return nil
}

func (w *Publisher) fail(id, reason string) {
	if err := w.store.MarkPubFailed(id, reason); err != nil {
		w.logger.Error("mark failed", "id", id, "error", err)
	}
}

// decodeContentHash turns the stored hex digest back into registry bytes.
func decodeContentHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("expected %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
