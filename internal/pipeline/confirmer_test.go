package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tkaraden/sealbird/internal/models"
)

const testExplorerURL = "https://basescan.org/tx/%s"

func TestConfirmerUnobservedTransactionUntouched(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(100)
	w := NewConfirmer(s, gateway, &fakePoster{}, testExplorerURL, 10, 10, time.Minute, testLogger())

	out, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Succeeded != 0 || out.Failed != 0 {
		t.Errorf("outcome = %+v, want zero", out)
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusTxSubmitted {
		t.Errorf("status = %s, want tx_submitted", got.Status)
	}
	if got.Confirmations != 0 {
		t.Errorf("confirmations = %d, want 0", got.Confirmations)
	}
}

func TestConfirmerZeroDepthUntouched(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(100)
	gateway.setConfirmations("0xa", 0)
	w := NewConfirmer(s, gateway, &fakePoster{}, testExplorerURL, 10, 10, time.Minute, testLogger())

	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusTxSubmitted {
		t.Errorf("status = %s, want tx_submitted", got.Status)
	}
}

func TestConfirmerBelowThresholdTracksDepth(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(110)
	gateway.setConfirmations("0xa", 5)
	poster := &fakePoster{configured: true}
	w := NewConfirmer(s, gateway, poster, testExplorerURL, 10, 10, time.Minute, testLogger())

	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
	if got.Confirmations != 5 {
		t.Errorf("confirmations = %d, want 5", got.Confirmations)
	}
	if len(poster.calls) != 0 {
		t.Errorf("sealed before reaching the threshold")
	}

	// One short of the threshold still only updates the depth.
	gateway.setConfirmations("0xa", 9)
	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	got = reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusConfirmed || got.Confirmations != 9 {
		t.Errorf("got %s/%d, want confirmed/9", got.Status, got.Confirmations)
	}
}

func TestConfirmerThresholdFinalizesAndSeals(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(120)
	gateway.setConfirmations("0xa", 10)
	poster := &fakePoster{configured: true}
	w := NewConfirmer(s, gateway, poster, testExplorerURL, 10, 10, time.Minute, testLogger())

	if _, err := w.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusFinal {
		t.Fatalf("status = %s, want final", got.Status)
	}
	if got.Confirmations != 10 {
		t.Errorf("confirmations = %d, want 10", got.Confirmations)
	}

	if len(poster.calls) != 1 {
		t.Fatalf("got %d seal posts, want 1", len(poster.calls))
	}
	seal := poster.calls[0]
	if seal.inReplyTo != "reply-p1" {
		t.Errorf("seal replied to %q, want reply-p1", seal.inReplyTo)
	}
	if !strings.Contains(seal.text, "https://basescan.org/tx/0xa") {
		t.Errorf("seal text = %q", seal.text)
	}
	if got.SealPostID != "post-1" {
		t.Errorf("seal post id = %q, want post-1", got.SealPostID)
	}
}

func TestConfirmerFinalIsTerminal(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(120)
	gateway.setConfirmations("0xa", 10)
	poster := &fakePoster{configured: true}
	w := NewConfirmer(s, gateway, poster, testExplorerURL, 10, 10, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		gateway.setConfirmations("0xa", 10+uint64(i))
		if _, err := w.Process(context.Background()); err != nil {
			t.Fatalf("Process #%d failed: %v", i+1, err)
		}
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusFinal {
		t.Errorf("status = %s, want final", got.Status)
	}
	if len(poster.calls) != 1 {
		t.Errorf("sealed %d times, want once", len(poster.calls))
	}
}

func TestConfirmerSealFailureStillFinal(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(120)
	gateway.setConfirmations("0xa", 12)
	poster := &fakePoster{configured: true, err: errors.New("rate limited")}
	w := NewConfirmer(s, gateway, poster, testExplorerURL, 10, 10, time.Minute, testLogger())

	out, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Failed != 0 {
		t.Errorf("best-effort seal counted as failure: %+v", out)
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusFinal {
		t.Errorf("status = %s, want final", got.Status)
	}
	if got.SealPostID != "" {
		t.Errorf("seal post id = %q, want empty", got.SealPostID)
	}
}

func TestConfirmerLookupErrorRetries(t *testing.T) {
	s := newTestStore(t)
	item := seedSubmitted(t, s, "p1", "a reply", "0xa", 100)

	gateway := newFakeGateway(120)
	gateway.confErr = errors.New("rpc timeout")
	w := NewConfirmer(s, gateway, &fakePoster{}, testExplorerURL, 10, 10, time.Minute, testLogger())

	out, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Failed != 1 {
		t.Errorf("Failed = %d, want 1", out.Failed)
	}

	got := reloadPubItem(t, s, item.ID)
	if got.Status != models.PubStatusTxSubmitted {
		t.Errorf("status = %s, want tx_submitted", got.Status)
	}
}
