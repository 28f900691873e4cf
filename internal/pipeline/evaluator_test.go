package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tkaraden/sealbird/internal/ai"
	"github.com/tkaraden/sealbird/internal/knowledge"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

func newTestEvaluator(s *store.Store, client ai.Client) *Evaluator {
	ranker := knowledge.NewRanker(s, nil, 5, 0.3, 50)
	return NewEvaluator(s, client, ranker, "sealbird", 10, 10, time.Minute, testLogger())
}

func TestEvaluatorSkipsOwnPosts(t *testing.T) {
	s := newTestStore(t)
	seedPost(t, s, "mine", "Sealbird", false)
	seedPost(t, s, "theirs", "alice", false)

	brain := newFakeAI()
	w := newTestEvaluator(s, brain)

	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	item, err := s.GetEvalItem("mine")
	if err != nil {
		t.Fatalf("GetEvalItem failed: %v", err)
	}
	if item != nil {
		t.Errorf("own post was queued for evaluation")
	}
	post, err := s.GetPost("mine")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if !post.Processed {
		t.Errorf("own post not marked processed")
	}

	item, err = s.GetEvalItem("theirs")
	if err != nil {
		t.Fatalf("GetEvalItem failed: %v", err)
	}
	if item == nil {
		t.Fatalf("foreign post never queued")
	}
	if item.Status != models.EvalStatusDone {
		t.Errorf("status = %s, want done", item.Status)
	}
}

func TestEvaluatorRespondCreatesReplyItem(t *testing.T) {
	s := newTestStore(t)
	seedPost(t, s, "p1", "alice", false)

	brain := newFakeAI()
	brain.evals["p1"] = &ai.Evaluation{Decision: models.DecisionRespond, Reasoning: "direct question"}
	w := newTestEvaluator(s, brain)

	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	eval, err := s.GetEvalItem("p1")
	if err != nil {
		t.Fatalf("GetEvalItem failed: %v", err)
	}
	if eval.Decision != models.DecisionRespond {
		t.Errorf("decision = %s, want RESPOND", eval.Decision)
	}
	reply, err := s.GetReplyItem("p1")
	if err != nil {
		t.Fatalf("GetReplyItem failed: %v", err)
	}
	if reply == nil {
		t.Fatalf("RESPOND did not queue a reply")
	}
	if reply.Status != models.ReplyStatusPending {
		t.Errorf("reply status = %s, want pending", reply.Status)
	}
}

func TestEvaluatorIgnoreEndsPipeline(t *testing.T) {
	s := newTestStore(t)
	seedPost(t, s, "p1", "alice", false)

	w := newTestEvaluator(s, newFakeAI())
	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	reply, err := s.GetReplyItem("p1")
	if err != nil {
		t.Fatalf("GetReplyItem failed: %v", err)
	}
	if reply != nil {
		t.Errorf("IGNORE queued a reply")
	}
}

func TestEvaluatorIsolatesFailures(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		seedPost(t, s, id, "alice", false)
	}

	brain := newFakeAI()
	brain.evals["a"] = &ai.Evaluation{Decision: models.DecisionRespond, Reasoning: "good"}
	brain.evalErr["b"] = errors.New("model overloaded")
	w := newTestEvaluator(s, brain)

	out, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Failed != 1 {
		t.Errorf("Failed = %d, want 1", out.Failed)
	}

	a, _ := s.GetEvalItem("a")
	if a.Status != models.EvalStatusDone {
		t.Errorf("item a status = %s, want done", a.Status)
	}
	c, _ := s.GetEvalItem("c")
	if c.Status != models.EvalStatusDone {
		t.Errorf("item c status = %s, want done", c.Status)
	}

	// The failed item goes back to pending so the next tick retries it.
	b, _ := s.GetEvalItem("b")
	if b.Status != models.EvalStatusPending {
		t.Errorf("item b status = %s, want pending", b.Status)
	}
	if b.Decision != "" {
		t.Errorf("item b decision = %s, want empty", b.Decision)
	}
}

func TestEvaluatorDoesNotRejudge(t *testing.T) {
	s := newTestStore(t)
	seedPost(t, s, "p1", "alice", false)

	brain := newFakeAI()
	w := newTestEvaluator(s, brain)

	for i := 0; i < 3; i++ {
		if _, err := w.Process(context.Background()); err != nil {
			t.Fatalf("Process #%d failed: %v", i+1, err)
		}
	}
	if len(brain.evalCalls) != 1 {
		t.Errorf("Evaluate called %d times, want 1", len(brain.evalCalls))
	}
}

func TestEvaluatorMissingPostRecordsIgnore(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnqueueEvaluation("ghost"); err != nil {
		t.Fatalf("EnqueueEvaluation failed: %v", err)
	}

	w := newTestEvaluator(s, newFakeAI())
	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	item, err := s.GetEvalItem("ghost")
	if err != nil {
		t.Fatalf("GetEvalItem failed: %v", err)
	}
	if item.Status != models.EvalStatusDone || item.Decision != models.DecisionIgnore {
		t.Errorf("got %s/%s, want done/IGNORE", item.Status, item.Decision)
	}
}
