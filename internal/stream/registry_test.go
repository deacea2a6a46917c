package stream

import "testing"

func TestRegistry_StartSignalClear(t *testing.T) {
	r := NewRegistry()

	if r.IsActive(1) {
		t.Fatalf("fresh registry should have no active streams")
	}
	if r.Signal(1) {
		t.Fatalf("signalling an empty chat should report false")
	}

	tok := r.Start(1)
	if !r.IsActive(1) {
		t.Fatalf("expected chat 1 active after Start")
	}
	if tok.Signalled() {
		t.Fatalf("fresh token must not be signalled")
	}

	if !r.Signal(1) {
		t.Fatalf("signalling an active chat should report true")
	}
	if !tok.Signalled() {
		t.Fatalf("token should be signalled")
	}
	// cancellation alone does not remove the entry
	if !r.IsActive(1) {
		t.Fatalf("entry should survive until the terminal update clears it")
	}

	r.Clear(1, tok)
	if r.IsActive(1) {
		t.Fatalf("expected chat 1 inactive after Clear")
	}
}

func TestRegistry_StartSignalsSupersededToken(t *testing.T) {
	r := NewRegistry()

	first := r.Start(2)
	second := r.Start(2)

	if !first.Signalled() {
		t.Fatalf("superseded token should be signalled on replacement")
	}
	if second.Signalled() {
		t.Fatalf("replacement token must start unsignalled")
	}
}

func TestRegistry_ClearIsTokenMatched(t *testing.T) {
	r := NewRegistry()

	stale := r.Start(3)
	current := r.Start(3)

	// a late terminal update from the superseded stream must not drop
	// the successor's entry
	r.Clear(3, stale)
	if !r.IsActive(3) {
		t.Fatalf("stale clear removed the current entry")
	}

	r.Clear(3, current)
	if r.IsActive(3) {
		t.Fatalf("matching clear should remove the entry")
	}
}

func TestRegistry_ClearNilTokenIsUnconditional(t *testing.T) {
	r := NewRegistry()
	r.Start(4)
	r.Clear(4, nil)
	if r.IsActive(4) {
		t.Fatalf("nil-token clear should remove the entry")
	}
}

func TestToken_SignalIdempotent(t *testing.T) {
	tok := newToken()
	tok.Signal()
	tok.Signal() // must not panic on double close

	select {
	case <-tok.Done():
	default:
		t.Fatalf("done channel should be closed after Signal")
	}
}
