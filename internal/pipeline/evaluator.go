package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tkaraden/sealbird/internal/ai"
	"github.com/tkaraden/sealbird/internal/knowledge"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

// Evaluator sweeps fresh posts into the evaluation queue and judges them.
type Evaluator struct {
	store       *store.Store
	ai          ai.Client
	ranker      *knowledge.Ranker
	botAuthor   string
	batch       int
	threadLimit int
	every       time.Duration
	logger      *slog.Logger
}

// NewEvaluator creates the evaluation worker. botAuthor is the pipeline's
// own handle; its posts are consumed without evaluation.
func NewEvaluator(s *store.Store, client ai.Client, ranker *knowledge.Ranker, botAuthor string, batch, threadLimit int, every time.Duration, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:       s,
		ai:          client,
		ranker:      ranker,
		botAuthor:   botAuthor,
		batch:       batch,
		threadLimit: threadLimit,
		every:       every,
		logger:      logger.With("component", "evaluator"),
	}
}

func (w *Evaluator) Name() string { return "evaluator" }

func (w *Evaluator) Interval() time.Duration { return w.every }

// Process runs both evaluation phases: queueing new posts, then judging
// queued ones.
func (w *Evaluator) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	posts, err := w.store.ListUnprocessedPosts(false, w.batch)
	if err != nil {
		return out, fmt.Errorf("list posts: %w", err)
	}
	for _, post := range posts {
		if strings.EqualFold(post.Author, w.botAuthor) {
			// Our own posts are consumed, never judged.
			if err := w.store.MarkPostProcessed(post.ID); err != nil {
				w.logger.Error("mark own post processed", "post_id", post.ID, "error", err)
				out.Failed++
			}
			continue
		}
		if err := w.store.EnqueueEvaluation(post.ID); err != nil {
			w.logger.Error("enqueue evaluation", "post_id", post.ID, "error", err)
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

	items, err := w.store.ListEvalItems(models.EvalStatusPending, w.batch)
	if err != nil {
		return out, fmt.Errorf("list eval queue: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err := w.evaluate(ctx, item.PostID); err != nil {
			w.logger.Error("evaluate post", "post_id", item.PostID, "error", err)
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out, nil
}

func (w *Evaluator) evaluate(ctx context.Context, postID string) error {
	if err := w.store.MarkEvaluating(postID); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("claim item: %w", err)
	}

	post, err := w.store.GetPost(postID)
	if err != nil {
		w.reset(postID)
		return fmt.Errorf("load post: %w", err)
	}
	if post == nil {
		// The queue row outlived its post. Close it out rather than retry
		// forever.
		return w.store.CompleteEvaluation(postID, models.DecisionIgnore, "source post missing")
	}

	thread, notes, err := postContext(ctx, w.store, w.ranker, post, w.threadLimit)
	if err != nil {
		w.reset(postID)
		return err
	}

	eval, err := w.ai.Evaluate(ctx, post, thread, notes)
	if err != nil {
		w.reset(postID)
		return fmt.Errorf("ai evaluate: %w", err)
	}

	if err := w.store.CompleteEvaluation(postID, eval.Decision, eval.Reasoning); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("complete evaluation: %w", err)
	}
	return nil
}

func (w *Evaluator) reset(postID string) {
	if err := w.store.ResetEvaluation(postID); err != nil {
		w.logger.Error("reset evaluation", "post_id", postID, "error", err)
	}
}
