package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tkaraden/sealbird/internal/ai"
	"github.com/tkaraden/sealbird/internal/chain"
	"github.com/tkaraden/sealbird/internal/knowledge"
	"github.com/tkaraden/sealbird/internal/models"
)

type stubWorker struct {
	name  string
	every time.Duration
	err   error

	mu    sync.Mutex
	ticks int
}

func (w *stubWorker) Name() string { return w.name }

func (w *stubWorker) Interval() time.Duration { return w.every }

func (w *stubWorker) Process(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ticks++
	return Outcome{Succeeded: 1}, w.err
}

func (w *stubWorker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ticks
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	a := &stubWorker{name: "a", every: 10 * time.Millisecond}
	b := &stubWorker{name: "b", every: 10 * time.Millisecond}
	sched := NewScheduler(testLogger(), a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	if err := sched.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil on cancellation", err)
	}
	if a.count() == 0 || b.count() == 0 {
		t.Errorf("workers never ticked: a=%d b=%d", a.count(), b.count())
	}
}

func TestSchedulerSurvivesWorkerErrors(t *testing.T) {
	bad := &stubWorker{name: "bad", every: 10 * time.Millisecond, err: errors.New("boom")}
	sched := NewScheduler(testLogger(), bad)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := sched.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}
	if bad.count() < 2 {
		t.Errorf("failing worker ticked %d times, want repeated ticks", bad.count())
	}
}

func TestRunOnceAggregatesOutcomes(t *testing.T) {
	a := &stubWorker{name: "a", every: time.Hour}
	b := &stubWorker{name: "b", every: time.Hour}
	sched := NewScheduler(testLogger(), a, b)

	out := sched.RunOnce(context.Background())
	if out.Succeeded != 2 || out.Failed != 0 {
		t.Errorf("outcome = %+v, want 2 succeeded", out)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("ticks = %d/%d, want 1/1", a.count(), b.count())
	}
}

func TestIndexerPromotesTrustedPosts(t *testing.T) {
	s := newTestStore(t)
	seedPost(t, s, "k1", "curator", true)
	seedPost(t, s, "q1", "alice", false)

	w := NewIndexer(s, 10, time.Minute, testLogger())
	out, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", out.Succeeded)
	}

	entries, err := s.ListKnowledgeEntries(10)
	if err != nil {
		t.Fatalf("ListKnowledgeEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d knowledge entries, want 1", len(entries))
	}
	if entries[0].PostID != "k1" || entries[0].Content != "content of k1" {
		t.Errorf("entry = %+v", entries[0])
	}

	post, err := s.GetPost("k1")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if !post.Processed {
		t.Errorf("trusted post not marked processed")
	}

	// Untrusted posts belong to the evaluator, not the knowledge base.
	other, err := s.GetPost("q1")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if other.Processed {
		t.Errorf("indexer consumed an untrusted post")
	}
}

func TestBackfillerEmbedsEntries(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateKnowledgeEntry("k1", "seals are pinnipeds", "curator"); err != nil {
		t.Fatalf("CreateKnowledgeEntry failed: %v", err)
	}

	embedder := &fakeEmbedder{}
	w := NewBackfiller(s, embedder, 10, time.Minute, testLogger())
	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	remaining, err := s.ListUnembeddedEntries(10)
	if err != nil {
		t.Fatalf("ListUnembeddedEntries failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d entries still unembedded", len(remaining))
	}
	entries, err := s.ListKnowledgeEntries(10)
	if err != nil {
		t.Fatalf("ListKnowledgeEntries failed: %v", err)
	}
	if len(entries[0].Embedding) == 0 {
		t.Errorf("embedding not stored")
	}
}

func TestBackfillerWithoutEmbedderIdles(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateKnowledgeEntry("k1", "seals are pinnipeds", "curator"); err != nil {
		t.Fatalf("CreateKnowledgeEntry failed: %v", err)
	}

	w := NewBackfiller(s, nil, 10, time.Minute, testLogger())
	out, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Succeeded != 0 || out.Failed != 0 {
		t.Errorf("outcome = %+v, want zero", out)
	}
}

// TestPipelineEndToEnd drives one post from discovery to a sealed, final
// publication using RunOnce ticks, the way the daemon would over time.
func TestPipelineEndToEnd(t *testing.T) {
	s := newTestStore(t)
	seedPost(t, s, "k1", "curator", true)
	seedPost(t, s, "q1", "alice", false)

	brain := newFakeAI()
	brain.evals["q1"] = &ai.Evaluation{Decision: models.DecisionRespond, Reasoning: "direct question"}
	brain.replies["q1"] = "seals are pinnipeds, and this reply is sealed"

	poster := &fakePoster{configured: true}
	gateway := newFakeGateway(50)
	embedder := &fakeEmbedder{}
	pinner := newFakePinner()
	ranker := knowledge.NewRanker(s, nil, 5, 0.3, 50)

	sched := NewScheduler(testLogger(),
		NewIndexer(s, 10, time.Minute, testLogger()),
		NewBackfiller(s, embedder, 10, time.Minute, testLogger()),
		NewEvaluator(s, brain, ranker, "sealbird", 10, 10, time.Minute, testLogger()),
		NewGenerator(s, brain, ranker, 10, 10, time.Minute, testLogger()),
		NewPublisher(s, poster, gateway, 10, time.Minute, testLogger()),
		NewConfirmer(s, gateway, poster, testExplorerURL, 10, 10, time.Minute, testLogger()),
		NewRetrier(s, gateway, 6, 3, 10, time.Minute, testLogger()),
		NewMetadataTracker(s, map[uint64]chain.ConfirmationReader{8453: gateway}, 0, 10, 100, time.Minute, testLogger()),
		NewUnpinner(s, pinner, 100, time.Minute, testLogger()),
	)

	ctx := context.Background()

	// Tick 1: discovery through on-chain submission.
	out := sched.RunOnce(ctx)
	if out.Failed != 0 {
		t.Fatalf("first tick had %d failures", out.Failed)
	}

	items, err := s.ListPubItems(10, models.PubStatusTxSubmitted)
	if err != nil {
		t.Fatalf("ListPubItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d submitted items after first tick, want 1", len(items))
	}
	item := items[0]
	if item.TxHash != "0xtx1" || item.TxSentHeight != 50 {
		t.Errorf("submission = %+v", item)
	}

	// Tick 2: the transaction starts confirming.
	gateway.setConfirmations("0xtx1", 3)
	out = sched.RunOnce(ctx)
	if out.Failed != 0 {
		t.Fatalf("second tick had %d failures", out.Failed)
	}
	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusConfirmed || got.Confirmations != 3 {
		t.Fatalf("got %s/%d, want confirmed/3", got.Status, got.Confirmations)
	}
	if len(gateway.submits) != 1 {
		t.Errorf("a confirming transaction was resubmitted")
	}

	// Tick 3: finality and the public seal.
	gateway.setConfirmations("0xtx1", 11)
	out = sched.RunOnce(ctx)
	if out.Failed != 0 {
		t.Fatalf("third tick had %d failures", out.Failed)
	}
	got = reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusFinal {
		t.Fatalf("status = %s, want final", got.Status)
	}
	if got.SealPostID == "" {
		t.Errorf("finality was not announced")
	}

	records, err := s.ListVerificationRecords(10)
	if err != nil {
		t.Fatalf("ListVerificationRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].TxHash != "0xtx1" {
		t.Errorf("verification records = %+v", records)
	}

	entries, err := s.ListUnembeddedEntries(10)
	if err != nil {
		t.Fatalf("ListUnembeddedEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("knowledge entry never embedded")
	}

	eval, err := s.GetEvalItem("q1")
	if err != nil {
		t.Fatalf("GetEvalItem failed: %v", err)
	}
	if eval.Decision != models.DecisionRespond {
		t.Errorf("decision = %s, want RESPOND", eval.Decision)
	}
}
