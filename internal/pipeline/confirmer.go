package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/social"
	"github.com/tkaraden/sealbird/internal/store"
)

// Confirmer tracks submitted transactions until they reach finality.
type Confirmer struct {
	store       *store.Store
	gateway     chain.Gateway
	social      social.Poster
	explorerURL string
	threshold   uint64
	batch       int
	every       time.Duration
	logger      *slog.Logger
}

// NewConfirmer creates the confirmation tracking worker. explorerURL is a
// template with one %s verb for the transaction hash.
func NewConfirmer(s *store.Store, gateway chain.Gateway, poster social.Poster, explorerURL string, threshold uint64, batch int, every time.Duration, logger *slog.Logger) *Confirmer {
	return &Confirmer{
		store:       s,
		gateway:     gateway,
		social:      poster,
		explorerURL: explorerURL,
		threshold:   threshold,
		batch:       batch,
		every:       every,
		logger:      logger.With("component", "confirmer"),
	}
}

func (w *Confirmer) Name() string { return "confirmer" }

func (w *Confirmer) Interval() time.Duration { return w.every }

// Process refreshes confirmation counts for every in-flight transaction.
func (w *Confirmer) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	items, err := w.store.ListPubItems(w.batch, models.PubStatusTxSubmitted, models.PubStatusConfirmed)
	if err != nil {
		return out, fmt.Errorf("list submitted items: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		acted, err := w.track(ctx, item)
		if err != nil {
			w.logger.Error("track confirmations", "id", item.ID, "tx_hash", item.TxHash, "error", err)
			out.Failed++
			continue
		}
		if acted {
			out.Succeeded++
		}
	}
	return out, nil
}

func (w *Confirmer) track(ctx context.Context, item models.PubQueueItem) (bool, error) {
	count, err := w.gateway.TransactionConfirmations(ctx, item.TxHash)
	if err != nil {
		return false, err
	}
	if count == nil || *count == 0 {
		// Not observed on chain. Whether that is a problem is the retry
		// handler's call.
		return false, nil
	}

	if *count < w.threshold {
		if err := w.store.SetConfirmations(item.ID, *count); err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	if err := w.store.MarkFinal(item.ID, *count); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return false, nil
		}
		return false, err
	}
	w.seal(ctx, item)
	return true, nil
}

// seal posts a reply under the bot's own reply pointing at the on-chain
// proof. Best effort: a failure here never unwinds finality.
func (w *Confirmer) seal(ctx context.Context, item models.PubQueueItem) {
	if !w.social.IsConfigured() || item.ReplyPostID == "" {
		return
	}

	text := fmt.Sprintf("Sealed on-chain: %s", fmt.Sprintf(w.explorerURL, item.TxHash))
	sealPostID, err := w.social.PostReply(ctx, item.ReplyPostID, text)
	if err != nil {
		w.logger.Warn("seal reply failed", "id", item.ID, "error", err)
		return
	}
	if err := w.store.SetSealPostID(item.ID, sealPostID); err != nil {
		w.logger.Warn("record seal post", "id", item.ID, "error", err)
	}
}
