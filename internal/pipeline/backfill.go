package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/embeddings"
	"github.com/tkaraden/sealbird/internal/store"
)

// Backfiller embeds knowledge entries that do not have a vector yet.
type Backfiller struct {
	store    *store.Store
	embedder embeddings.Embedder
	batch    int
	every    time.Duration
	logger   *slog.Logger
}

// NewBackfiller creates the embedding backfill worker.
func NewBackfiller(s *store.Store, embedder embeddings.Embedder, batch int, every time.Duration, logger *slog.Logger) *Backfiller {
	return &Backfiller{
		store:    s,
		embedder: embedder,
		batch:    batch,
		every:    every,
		logger:   logger.With("component", "embedding-backfill"),
	}
}

func (w *Backfiller) Name() string { return "embedding-backfill" }

func (w *Backfiller) Interval() time.Duration { return w.every }

// Process batch-embeds entries with missing vectors and stores the blobs.
func (w *Backfiller) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	if w.embedder == nil {
		return out, nil
	}

	entries, err := w.store.ListUnembeddedEntries(w.batch)
	if err != nil {
		return out, fmt.Errorf("list unembedded entries: %w", err)
	}
	if len(entries) == 0 {
		return out, nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Content
	}

	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return out, fmt.Errorf("embed batch: %w", err)
	}

	for i, entry := range entries {
		if len(vectors[i]) == 0 {
			w.logger.Error("empty embedding", "entry_id", entry.ID)
			out.Failed++
			continue
		}
		if err := w.store.SetKnowledgeEmbedding(entry.ID, embeddings.Serialize(vectors[i])); err != nil {
			w.logger.Error("store embedding", "entry_id", entry.ID, "error", err)
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out, nil
}
