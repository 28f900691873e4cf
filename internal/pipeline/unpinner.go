package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/pin"
	"github.com/tkaraden/sealbird/internal/store"
)

// Unpinner drops pins for content superseded by confirmed metadata
// updates.
type Unpinner struct {
	store  *store.Store
	pinner pin.Client
	batch  int
	every  time.Duration
	logger *slog.Logger
}

// NewUnpinner creates the unpin worker.
func NewUnpinner(s *store.Store, pinner pin.Client, batch int, every time.Duration, logger *slog.Logger) *Unpinner {
	return &Unpinner{
		store:  s,
		pinner: pinner,
		batch:  batch,
		every:  every,
		logger: logger.With("component", "unpinner"),
	}
}

func (w *Unpinner) Name() string { return "unpinner" }

func (w *Unpinner) Interval() time.Duration { return w.every }

// Process removes queued pins. Content the node no longer holds counts
// as removed.
func (w *Unpinner) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	if w.pinner == nil {
		return out, nil
	}

	items, err := w.store.ListUnpinItems(w.batch)
	if err != nil {
		return out, fmt.Errorf("list unpin queue: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err := w.pinner.Unpin(ctx, item.ContentID); err != nil && !errors.Is(err, pin.ErrNotPinned) {
			w.logger.Error("unpin content", "content_id", item.ContentID, "error", err)
			out.Failed++
			continue
		}
		if err := w.store.DeleteUnpinItem(item.ID); err != nil {
			w.logger.Error("delete unpin item", "id", item.ID, "error", err)
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out, nil
}
