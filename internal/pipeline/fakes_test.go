package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/tkaraden/sealbird/internal/ai"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPost(t *testing.T, s *store.Store, id, author string, trusted bool) *models.Post {
	t.Helper()
	post := &models.Post{ID: id, Content: "content of " + id, Author: author, Trusted: trusted}
	if err := s.UpsertPost(post); err != nil {
		t.Fatalf("seed post %s: %v", id, err)
	}
	return post
}

// seedPubItem walks a post through both queues to a pending publication
// item.
func seedPubItem(t *testing.T, s *store.Store, postID, reply string) *models.PubQueueItem {
	t.Helper()
	seedPost(t, s, postID, "alice", false)
	if err := s.EnqueueEvaluation(postID); err != nil {
		t.Fatalf("enqueue evaluation: %v", err)
	}
	if err := s.CompleteEvaluation(postID, models.DecisionRespond, "worth replying"); err != nil {
		t.Fatalf("complete evaluation: %v", err)
	}
	item, err := s.CompleteReply(postID, reply)
	if err != nil {
		t.Fatalf("complete reply: %v", err)
	}
	return item
}

func seedPublished(t *testing.T, s *store.Store, postID, reply string) *models.PubQueueItem {
	t.Helper()
	item := seedPubItem(t, s, postID, reply)
	hash := sha256.Sum256([]byte(reply))
	if err := s.MarkPublished(item.ID, "reply-"+postID, hex.EncodeToString(hash[:])); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	return reloadPubItem(t, s, item.ID)
}

func seedSubmitted(t *testing.T, s *store.Store, postID, reply, txHash string, height uint64) *models.PubQueueItem {
	t.Helper()
	item := seedPublished(t, s, postID, reply)
	if err := s.MarkTxSubmitted(item.ID, txHash, height); err != nil {
		t.Fatalf("mark tx submitted: %v", err)
	}
	return reloadPubItem(t, s, item.ID)
}

func reloadPubItem(t *testing.T, s *store.Store, id string) *models.PubQueueItem {
	t.Helper()
	item, err := s.GetPubItem(id)
	if err != nil {
		t.Fatalf("reload pub item: %v", err)
	}
	if item == nil {
		t.Fatalf("pub item %s vanished", id)
	}
	return item
}

// --- Fake external clients ---

type fakeAI struct {
	evals    map[string]*ai.Evaluation
	evalErr  map[string]error
	replies  map[string]string
	replyErr map[string]error

	evalCalls  []string
	replyCalls []string
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		evals:    make(map[string]*ai.Evaluation),
		evalErr:  make(map[string]error),
		replies:  make(map[string]string),
		replyErr: make(map[string]error),
	}
}

func (f *fakeAI) Evaluate(ctx context.Context, post *models.Post, thread, knowledge []string) (*ai.Evaluation, error) {
	f.evalCalls = append(f.evalCalls, post.ID)
	if err := f.evalErr[post.ID]; err != nil {
		return nil, err
	}
	if eval, ok := f.evals[post.ID]; ok {
		return eval, nil
	}
	return &ai.Evaluation{Decision: models.DecisionIgnore, Reasoning: "nothing to add"}, nil
}

func (f *fakeAI) GenerateReply(ctx context.Context, post *models.Post, thread, knowledge []string) (string, error) {
	f.replyCalls = append(f.replyCalls, post.ID)
	if err := f.replyErr[post.ID]; err != nil {
		return "", err
	}
	if reply, ok := f.replies[post.ID]; ok {
		return reply, nil
	}
	return "a reply to " + post.ID, nil
}

type postCall struct {
	inReplyTo string
	text      string
}

type fakePoster struct {
	configured bool
	err        error
	nextID     int
	calls      []postCall
}

func (f *fakePoster) IsConfigured() bool { return f.configured }

func (f *fakePoster) PostReply(ctx context.Context, inReplyTo, text string) (string, error) {
	f.calls = append(f.calls, postCall{inReplyTo: inReplyTo, text: text})
	if f.err != nil {
		return "", f.err
	}
	f.nextID++
	return fmt.Sprintf("post-%d", f.nextID), nil
}

type submitCall struct {
	replyPostID  string
	sourcePostID string
	contentHash  [32]byte
}

type fakeGateway struct {
	height        uint64
	heightErr     error
	confirmations map[string]*uint64
	confErr       error
	hasResponse   map[string]bool
	hasErr        error
	submitErr     error
	nextTx        int
	submits       []submitCall
}

func newFakeGateway(height uint64) *fakeGateway {
	return &fakeGateway{
		height:        height,
		confirmations: make(map[string]*uint64),
		hasResponse:   make(map[string]bool),
	}
}

func (f *fakeGateway) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeGateway) TransactionConfirmations(ctx context.Context, txHash string) (*uint64, error) {
	if f.confErr != nil {
		return nil, f.confErr
	}
	return f.confirmations[txHash], nil
}

func (f *fakeGateway) HasResponse(ctx context.Context, postID string) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.hasResponse[postID], nil
}

func (f *fakeGateway) GetResponse(ctx context.Context, postID string) ([32]byte, error) {
	return [32]byte{}, nil
}

func (f *fakeGateway) SubmitRecordResponse(ctx context.Context, replyPostID, sourcePostID string, contentHash [32]byte) (string, error) {
	f.submits = append(f.submits, submitCall{replyPostID: replyPostID, sourcePostID: sourcePostID, contentHash: contentHash})
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextTx++
	return fmt.Sprintf("0xtx%d", f.nextTx), nil
}

// setConfirmations scripts the depth reported for a transaction hash.
func (f *fakeGateway) setConfirmations(txHash string, count uint64) {
	f.confirmations[txHash] = &count
}

type fakePinner struct {
	errs  map[string]error
	calls []string
}

func newFakePinner() *fakePinner {
	return &fakePinner{errs: make(map[string]error)}
}

func (f *fakePinner) Unpin(ctx context.Context, contentID string) error {
	f.calls = append(f.calls, contentID)
	return f.errs[contentID]
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Health(ctx context.Context) error { return f.err }
