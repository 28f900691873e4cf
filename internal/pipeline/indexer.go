package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/store"
)

// Indexer promotes trusted posts into the knowledge base.
type Indexer struct {
	store  *store.Store
	batch  int
	every  time.Duration
	logger *slog.Logger
}

// NewIndexer creates the knowledge indexer worker.
func NewIndexer(s *store.Store, batch int, every time.Duration, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:  s,
		batch:  batch,
		every:  every,
		logger: logger.With("component", "knowledge-indexer"),
	}
}

func (w *Indexer) Name() string { return "knowledge-indexer" }

func (w *Indexer) Interval() time.Duration { return w.every }

// Process turns unprocessed trusted posts into knowledge entries.
func (w *Indexer) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	posts, err := w.store.ListUnprocessedPosts(true, w.batch)
	if err != nil {
		return out, fmt.Errorf("list trusted posts: %w", err)
	}

	for _, post := range posts {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if _, err := w.store.CreateKnowledgeEntry(post.ID, post.Content, post.Author); err != nil {
			w.logger.Error("index post", "post_id", post.ID, "error", err)
			out.Failed++
			continue
		}
		if err := w.store.MarkPostProcessed(post.ID); err != nil {
			w.logger.Error("mark post processed", "post_id", post.ID, "error", err)
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out, nil
}
