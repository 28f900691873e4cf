package pipeline

import (
	"context"
	"fmt"

	"github.com/tkaraden/sealbird/internal/knowledge"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

// postContext assembles the thread lines and knowledge notes handed to
// the AI for one post.
func postContext(ctx context.Context, s *store.Store, ranker *knowledge.Ranker, post *models.Post, threadLimit int) (thread, notes []string, err error) {
	posts, err := s.ThreadContext(post.ConversationID, post.ID, threadLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("thread context: %w", err)
	}
	for _, p := range posts {
		thread = append(thread, fmt.Sprintf("@%s: %s", p.Author, p.Content))
	}

	if ranker != nil {
		entries, err := ranker.Relevant(ctx, post.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("knowledge lookup: %w", err)
		}
		for _, e := range entries {
			notes = append(notes, e.Content)
		}
	}
	return thread, notes, nil
}
