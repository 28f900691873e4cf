package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

// MetadataTracker follows metadata update transactions across chains
// until they confirm, queueing superseded content for unpinning.
type MetadataTracker struct {
	store     *store.Store
	readers   map[uint64]chain.ConfirmationReader
	onlyChain uint64
	threshold uint64
	batch     int
	every     time.Duration
	logger    *slog.Logger
}

// NewMetadataTracker creates the metadata confirmation worker. onlyChain
// restricts tracking to a single chain id when non-zero.
func NewMetadataTracker(s *store.Store, readers map[uint64]chain.ConfirmationReader, onlyChain, threshold uint64, batch int, every time.Duration, logger *slog.Logger) *MetadataTracker {
	return &MetadataTracker{
		store:     s,
		readers:   readers,
		onlyChain: onlyChain,
		threshold: threshold,
		batch:     batch,
		every:     every,
		logger:    logger.With("component", "metadata-tracker"),
	}
}

func (w *MetadataTracker) Name() string { return "metadata-tracker" }

func (w *MetadataTracker) Interval() time.Duration { return w.every }

// Process refreshes confirmation counts for unconfirmed metadata updates.
func (w *MetadataTracker) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	updates, err := w.store.ListUnconfirmedMetadataUpdates(w.batch)
	if err != nil {
		return out, fmt.Errorf("list metadata updates: %w", err)
	}

	for _, update := range updates {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if w.onlyChain != 0 && update.ChainID != w.onlyChain {
			continue
		}
		reader, ok := w.readers[update.ChainID]
		if !ok {
			// No endpoint configured for this chain; someone else's row.
			continue
		}

		acted, err := w.track(ctx, reader, update)
		if err != nil {
			w.logger.Error("track metadata update", "id", update.ID, "chain_id", update.ChainID, "tx_hash", update.TxHash, "error", err)
			out.Failed++
			continue
		}
		if acted {
			out.Succeeded++
		}
	}
	return out, nil
}

func (w *MetadataTracker) track(ctx context.Context, reader chain.ConfirmationReader, update models.MetadataUpdate) (bool, error) {
	count, err := reader.TransactionConfirmations(ctx, update.TxHash)
	if err != nil {
		return false, err
	}
	if count == nil {
		return false, nil
	}

	if *count < w.threshold {
		if err := w.store.SetMetadataConfirmations(update.ID, *count); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := w.store.ConfirmMetadataUpdate(update.ID, *count); err != nil {
		return false, err
	}
	return true, nil
}
