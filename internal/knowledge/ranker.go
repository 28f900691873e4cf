// Package knowledge ranks knowledge base entries by relevance to a query.
package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/tkaraden/sealbird/internal/embeddings"
	"github.com/tkaraden/sealbird/internal/models"
)

// EntrySource provides the corpus to rank against.
type EntrySource interface {
	ListKnowledgeEntries(limit int) ([]models.KnowledgeEntry, error)
}

// Ranker selects the knowledge entries most relevant to a piece of text.
// When no embedder is configured or the query cannot be embedded, it falls
// back to the most recent entries.
type Ranker struct {
	entries  EntrySource
	embedder embeddings.Embedder
	topK     int
	minScore float64
	corpus   int
}

// NewRanker creates a ranker over the given corpus. embedder may be nil.
func NewRanker(entries EntrySource, embedder embeddings.Embedder, topK int, minScore float64, corpusLimit int) *Ranker {
	return &Ranker{
		entries:  entries,
		embedder: embedder,
		topK:     topK,
		minScore: minScore,
		corpus:   corpusLimit,
	}
}

// Relevant returns up to topK entries ranked by cosine similarity to query.
func (r *Ranker) Relevant(ctx context.Context, query string) ([]models.KnowledgeEntry, error) {
	entries, err := r.entries.ListKnowledgeEntries(r.corpus)
	if err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	if r.embedder == nil || query == "" {
		return r.recent(entries), nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		// Ranking is best-effort; a dead embedding service must not stall
		// evaluation.
		return r.recent(entries), nil
	}

	type scoredEntry struct {
		entry models.KnowledgeEntry
		score float32
	}

	scores := make([]scoredEntry, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Embedding) == 0 {
			continue
		}
		vec := embeddings.Deserialize(entry.Embedding)
		if vec == nil {
			continue
		}
		score := embeddings.CosineSimilarity(queryVec, vec)
		if float64(score) < r.minScore {
			continue
		}
		scores = append(scores, scoredEntry{entry: entry, score: score})
	}

	if len(scores) == 0 {
		return r.recent(entries), nil
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	result := make([]models.KnowledgeEntry, 0, r.topK)
	for i := 0; i < len(scores) && i < r.topK; i++ {
		result = append(result, scores[i].entry)
	}
	return result, nil
}

// recent returns the first topK entries of the newest-first corpus.
func (r *Ranker) recent(entries []models.KnowledgeEntry) []models.KnowledgeEntry {
	if len(entries) > r.topK {
		entries = entries[:r.topK]
	}
	return entries
}
