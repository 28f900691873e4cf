package knowledge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tkaraden/sealbird/internal/embeddings"
	"github.com/tkaraden/sealbird/internal/models"
)

type fakeSource struct {
	entries []models.KnowledgeEntry
}

func (f *fakeSource) ListKnowledgeEntries(limit int) ([]models.KnowledgeEntry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func (f *fakeEmbedder) Health(ctx context.Context) error { return nil }

func entryWithVector(id string, vec []float32, age time.Duration) models.KnowledgeEntry {
	var blob []byte
	if vec != nil {
		blob = embeddings.Serialize(vec)
	}
	return models.KnowledgeEntry{
		ID:        id,
		PostID:    "post-" + id,
		Content:   "content " + id,
		Embedding: blob,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func TestRelevantOrdersBySimilarity(t *testing.T) {
	source := &fakeSource{entries: []models.KnowledgeEntry{
		entryWithVector("far", []float32{0, 1, 0}, time.Minute),
		entryWithVector("near", []float32{1, 0.1, 0}, 2*time.Minute),
		entryWithVector("exact", []float32{1, 0, 0}, 3*time.Minute),
	}}
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}}

	ranker := NewRanker(source, embedder, 2, 0.3, 100)
	got, err := ranker.Relevant(context.Background(), "query")
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "exact" || got[1].ID != "near" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRelevantFiltersBelowMinScore(t *testing.T) {
	source := &fakeSource{entries: []models.KnowledgeEntry{
		entryWithVector("orthogonal", []float32{0, 1, 0}, time.Minute),
	}}
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}}

	ranker := NewRanker(source, embedder, 5, 0.3, 100)
	got, err := ranker.Relevant(context.Background(), "query")
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}

	// Nothing clears the similarity floor, so recency wins.
	if len(got) != 1 || got[0].ID != "orthogonal" {
		t.Fatalf("expected recency fallback with 1 entry, got %d", len(got))
	}
}

func TestRelevantFallsBackWithoutEmbedder(t *testing.T) {
	source := &fakeSource{entries: []models.KnowledgeEntry{
		entryWithVector("newest", nil, time.Minute),
		entryWithVector("older", nil, time.Hour),
		entryWithVector("oldest", nil, 2*time.Hour),
	}}

	ranker := NewRanker(source, nil, 2, 0.3, 100)
	got, err := ranker.Relevant(context.Background(), "query")
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "newest" || got[1].ID != "older" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRelevantFallsBackOnEmbedError(t *testing.T) {
	source := &fakeSource{entries: []models.KnowledgeEntry{
		entryWithVector("only", []float32{1, 0, 0}, time.Minute),
	}}
	embedder := &fakeEmbedder{err: fmt.Errorf("service down")}

	ranker := NewRanker(source, embedder, 5, 0.3, 100)
	got, err := ranker.Relevant(context.Background(), "query")
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected fallback entry, got %d", len(got))
	}
}

func TestRelevantEmptyCorpus(t *testing.T) {
	ranker := NewRanker(&fakeSource{}, nil, 5, 0.3, 100)
	got, err := ranker.Relevant(context.Background(), "query")
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for empty corpus, got %v", got)
	}
}
