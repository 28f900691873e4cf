// Package ai decides whether and how to reply to posts.
package ai

import (
	"context"

	"github.com/tkaraden/sealbird/internal/models"
)

// Evaluation is the outcome of judging a post.
type Evaluation struct {
	Decision  models.Decision `json:"decision"`
	Reasoning string          `json:"reasoning"`
}

// Client is the interface for the reasoning backend. thread holds earlier
// posts from the same conversation, knowledge holds relevant notes; both
// are preformatted one-per-line by the caller.
type Client interface {
	// Evaluate judges a post and decides whether it deserves a reply.
	Evaluate(ctx context.Context, post *models.Post, thread []string, knowledge []string) (*Evaluation, error)

	// GenerateReply drafts a reply to the post.
	GenerateReply(ctx context.Context, post *models.Post, thread []string, knowledge []string) (string, error)
}
