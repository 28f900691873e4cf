package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkaraden/sealbird/internal/ai"
	"github.com/tkaraden/sealbird/internal/knowledge"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

// replyLimit is the network's character cap for a single post.
const replyLimit = 280

// Generator drafts replies for posts the evaluator approved.
type Generator struct {
	store       *store.Store
	ai          ai.Client
	ranker      *knowledge.Ranker
	batch       int
	threadLimit int
	every       time.Duration
	logger      *slog.Logger
}

// NewGenerator creates the reply generation worker.
func NewGenerator(s *store.Store, client ai.Client, ranker *knowledge.Ranker, batch, threadLimit int, every time.Duration, logger *slog.Logger) *Generator {
	return &Generator{
		store:       s,
		ai:          client,
		ranker:      ranker,
		batch:       batch,
		threadLimit: threadLimit,
		every:       every,
		logger:      logger.With("component", "generator"),
	}
}

func (w *Generator) Name() string { return "generator" }

func (w *Generator) Interval() time.Duration { return w.every }

// Process drafts a reply for each pending item and queues it for
// publication.
func (w *Generator) Process(ctx context.Context) (Outcome, error) {
	var out Outcome

	items, err := w.store.ListReplyItems(models.ReplyStatusPending, w.batch)
	if err != nil {
		return out, fmt.Errorf("list reply queue: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err := w.generate(ctx, item.PostID); err != nil {
			w.logger.Error("generate reply", "post_id", item.PostID, "error", err)
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out, nil
}

func (w *Generator) generate(ctx context.Context, postID string) error {
	if err := w.store.MarkGenerating(postID); err != nil {
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
		w.reset(postID)
		return fmt.Errorf("source post missing")
	}

	thread, notes, err := postContext(ctx, w.store, w.ranker, post, w.threadLimit)
	if err != nil {
		w.reset(postID)
		return err
	}

	reply, err := w.ai.GenerateReply(ctx, post, thread, notes)
	if err != nil {
		w.reset(postID)
		return fmt.Errorf("ai generate: %w", err)
	}
	reply = truncateReply(reply)

	if _, err := w.store.CompleteReply(postID, reply); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("complete reply: %w", err)
	}
	return nil
}

func (w *Generator) reset(postID string) {
	if err := w.store.ResetReply(postID); err != nil {
		w.logger.Error("reset reply", "post_id", postID, "error", err)
	}
}

// truncateReply caps a reply at the character limit, preserving whole
// runes and marking the cut with an ellipsis.
func truncateReply(s string) string {
	runes := []rune(s)
	if len(runes) <= replyLimit {
		return s
	}
	return string(runes[:replyLimit-1]) + "…"
}
