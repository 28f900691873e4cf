package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

// Retrier resubmits transactions the chain never observed. It acts only
// on sustained absence: the transaction must stay unknown past a grace
// window of blocks, so one lagging RPC answer cannot trigger a duplicate
// submission.
type Retrier struct {
	store      *store.Store
	gateway    chain.Gateway
	grace      uint64
	maxRetries int
	batch      int
	every      time.Duration
	logger     *slog.Logger
}

// NewRetrier creates the transaction retry worker.
func NewRetrier(s *store.Store, gateway chain.Gateway, grace uint64, maxRetries, batch int, every time.Duration, logger *slog.Logger) *Retrier {
	return &Retrier{
		store:      s,
		gateway:    gateway,
		grace:      grace,
		maxRetries: maxRetries,
		batch:      batch,
		every:      every,
		logger:     logger.With("component", "retrier"),
	}
}

func (w *Retrier) Name() string { return "retrier" }

func (w *Retrier) Interval() time.Duration { return w.every }

// Process checks every submitted-but-unconfirmed transaction. Items that
// ever reached confirmed status are left to the confirmation tracker.
func (w *Retrier) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	items, err := w.store.ListPubItems(w.batch, models.PubStatusTxSubmitted)
	if err != nil {
		return out, fmt.Errorf("list submitted items: %w", err)
	}
	if len(items) == 0 {
		return out, nil
	}

	height, err := w.gateway.CurrentBlockHeight(ctx)
	if err != nil {
		return out, fmt.Errorf("current height: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		acted, err := w.retry(ctx, item, height)
		if err != nil {
			w.logger.Error("retry transaction", "id", item.ID, "tx_hash", item.TxHash, "error", err)
			out.Failed++
			continue
		}
		if acted {
			out.Succeeded++
		}
	}
	return out, nil
}

func (w *Retrier) retry(ctx context.Context, item models.PubQueueItem, height uint64) (bool, error) {
	count, err := w.gateway.TransactionConfirmations(ctx, item.TxHash)
	if err != nil {
		return false, err
	}
	if count != nil {
		// The chain sees it; confirmation tracking owns it from here.
		return false, nil
	}
	if height < item.TxSentHeight+w.grace {
		// Still inside the grace window; the node may just be lagging.
		return false, nil
	}

	if item.SubmitRetries >= w.maxRetries {
		reason := fmt.Sprintf("transaction not observed after %d submissions", item.SubmitRetries+1)
		if err := w.store.MarkPubFailed(item.ID, reason); err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				return false, nil
			}
			return false, err
		}
		w.logger.Warn("gave up on transaction", "id", item.ID, "tx_hash", item.TxHash)
		return true, nil
	}

	hash, err := decodeContentHash(item.ContentHash)
	if err != nil {
		if err := w.store.MarkPubFailed(item.ID, fmt.Sprintf("bad content hash: %v", err)); err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	txHash, err := w.gateway.SubmitRecordResponse(ctx, item.ReplyPostID, item.SourcePostID, hash)
	if err != nil {
		// Row unchanged; the next tick tries again.
		return false, fmt.Errorf("resubmit: %w", err)
	}

	if err := w.store.UpdateResubmission(item.ID, txHash, height); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return false, nil
		}
		return false, err
	}
	w.logger.Info("resubmitted transaction", "id", item.ID, "old_tx", item.TxHash, "new_tx", txHash, "retries", item.SubmitRetries+1)
	return true, nil
}
