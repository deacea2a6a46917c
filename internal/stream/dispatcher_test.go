package stream

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type editCall struct {
	chatID    int64
	messageID int
	text      string
	controls  Controls
}

type sendCall struct {
	chatID   int64
	text     string
	controls Controls
}

type fakeDelivery struct {
	maxLen  int
	edits   []editCall
	sends   []sendCall
	deletes []int
	cleared []int

	// errors popped per EditMessage call
	editErrs []error
	// errors popped per SendMessage call
	sendErrs []error
}

func (f *fakeDelivery) SendMessage(ctx context.Context, chatID int64, text string, controls Controls) (int, error) {
	f.sends = append(f.sends, sendCall{chatID, text, controls})
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return 1000 + len(f.sends), nil
}

func (f *fakeDelivery) EditMessage(ctx context.Context, chatID int64, messageID int, text string, controls Controls) error {
	f.edits = append(f.edits, editCall{chatID, messageID, text, controls})
	if len(f.editErrs) > 0 {
		err := f.editErrs[0]
		f.editErrs = f.editErrs[1:]
		return err
	}
	return nil
}

func (f *fakeDelivery) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeDelivery) ClearControls(ctx context.Context, chatID int64, messageID int) error {
	f.cleared = append(f.cleared, messageID)
	return nil
}

func (f *fakeDelivery) MaxMessageLen() int {
	if f.maxLen > 0 {
		return f.maxLen
	}
	return 4096
}

// passRenderer marks rendered text so tests can tell raw from rendered.
type passRenderer struct{}

func (passRenderer) Render(text string) string { return "<r>" + text }

func (passRenderer) Strip(rendered string) string {
	return strings.ReplaceAll(rendered, "<r>", "")
}

type fakeStore struct {
	savedTurnID  int64
	savedAnswer  string
	createdMeta  Meta
	createdText  string
	createCalled bool
	nextTurnID   int64
}

func (f *fakeStore) SaveAnswer(ctx context.Context, turnID int64, answer string) error {
	f.savedTurnID = turnID
	f.savedAnswer = answer
	return nil
}

func (f *fakeStore) CreateAnsweredTurn(ctx context.Context, m Meta, answer string) (int64, error) {
	f.createCalled = true
	f.createdMeta = m
	f.createdText = answer
	return f.nextTurnID, nil
}

type fakeBinder struct {
	userID int64
	turnID int64
}

func (f *fakeBinder) BindCurrentTurn(userID, turnID int64) {
	f.userID = userID
	f.turnID = turnID
}

func newTestDispatcher(delivery *fakeDelivery) (*Dispatcher, *fakeStore, *fakeBinder, *Registry) {
	store := &fakeStore{nextTurnID: 99}
	binder := &fakeBinder{}
	registry := NewRegistry()
	d := NewDispatcher(delivery, passRenderer{}, store, binder, registry)
	return d, store, binder, registry
}

func TestDispatcher_DeduplicatesIdenticalPartials(t *testing.T) {
	delivery := &fakeDelivery{}
	d, _, _, _ := newTestDispatcher(delivery)

	u := Update{Kind: KindPartial, Meta: Meta{ChatID: 1, MessageID: 10}, Text: "hello"}
	d.handle(context.Background(), u)
	d.handle(context.Background(), u)

	if len(delivery.edits) != 1 {
		t.Fatalf("expected one edit for identical partials, got %d", len(delivery.edits))
	}
	if delivery.edits[0].text != "<r>hello" {
		t.Fatalf("expected rendered text, got %q", delivery.edits[0].text)
	}
	if delivery.edits[0].controls != ControlsCancel {
		t.Fatalf("partials should carry the cancel control")
	}

	u.Text = "hello more"
	d.handle(context.Background(), u)
	if len(delivery.edits) != 2 {
		t.Fatalf("expected a second edit for grown text, got %d", len(delivery.edits))
	}
}

func TestDispatcher_BadMarkupRetriesStripped(t *testing.T) {
	delivery := &fakeDelivery{editErrs: []error{ErrBadMarkup, nil}}
	d, _, _, _ := newTestDispatcher(delivery)

	u := Update{Kind: KindPartial, Meta: Meta{ChatID: 2, MessageID: 20}, Text: "broken"}
	d.handle(context.Background(), u)

	if len(delivery.edits) != 2 {
		t.Fatalf("expected edit plus plain retry, got %d", len(delivery.edits))
	}
	plain := delivery.edits[1].text
	if strings.Contains(plain, "<r>") {
		t.Fatalf("retry should be stripped, got %q", plain)
	}
	if !strings.Contains(plain, noteFormatting) {
		t.Fatalf("retry should carry the formatting note, got %q", plain)
	}

	// dedup advanced to the plain text, so the same partial again is
	// still delivered (rendered differs from what was stored)
	d.handle(context.Background(), u)
	if len(delivery.edits) != 3 {
		t.Fatalf("expected redelivery after stripped fallback, got %d edits", len(delivery.edits))
	}
}

func TestDispatcher_BadMarkupDoubleFailureKeepsDedup(t *testing.T) {
	delivery := &fakeDelivery{editErrs: []error{ErrBadMarkup, ErrBadMarkup}}
	d, _, _, _ := newTestDispatcher(delivery)

	u := Update{Kind: KindPartial, Meta: Meta{ChatID: 3, MessageID: 30}, Text: "broken"}
	d.handle(context.Background(), u)

	if len(delivery.edits) != 2 {
		t.Fatalf("expected two failed attempts, got %d", len(delivery.edits))
	}
	if _, ok := d.last["3:30"]; ok {
		t.Fatalf("dedup entry must not advance after a double failure")
	}
}

func TestDispatcher_FinalPersistsAndClearsState(t *testing.T) {
	delivery := &fakeDelivery{}
	d, store, _, registry := newTestDispatcher(delivery)

	tok := registry.Start(4)
	u := Update{
		Kind:  KindFinal,
		Meta:  Meta{ChatID: 4, MessageID: 40, TurnID: 7, UserID: 400},
		Text:  "the answer",
		token: tok,
	}
	d.handle(context.Background(), u)

	if len(delivery.edits) != 1 || delivery.edits[0].controls != ControlsRegenerate {
		t.Fatalf("final edit should carry the regenerate control: %+v", delivery.edits)
	}
	if store.savedTurnID != 7 || store.savedAnswer != "the answer" {
		t.Fatalf("raw text not persisted: turn=%d answer=%q", store.savedTurnID, store.savedAnswer)
	}
	if store.createCalled {
		t.Fatalf("non-reload finals must update the existing turn")
	}
	if registry.IsActive(4) {
		t.Fatalf("registry entry should be cleared on terminal update")
	}
	if _, ok := d.last["4:40"]; ok {
		t.Fatalf("dedup entry should die with the terminal update")
	}
}

func TestDispatcher_ReloadCreatesFreshTurn(t *testing.T) {
	delivery := &fakeDelivery{}
	d, store, binder, registry := newTestDispatcher(delivery)

	tok := registry.Start(5)
	u := Update{
		Kind:  KindFinal,
		Meta:  Meta{ChatID: 5, MessageID: 50, TurnID: 7, IsReload: true, UserID: 500, Question: "again"},
		Text:  "regenerated",
		token: tok,
	}
	d.handle(context.Background(), u)

	if !store.createCalled || store.createdText != "regenerated" {
		t.Fatalf("reload should record a fresh turn, got %+v", store)
	}
	if store.createdMeta.Question != "again" {
		t.Fatalf("turn meta not carried: %+v", store.createdMeta)
	}
	if binder.userID != 500 || binder.turnID != 99 {
		t.Fatalf("current turn not rebound: %+v", binder)
	}
}

func TestDispatcher_ZeroTurnSkipsPersistence(t *testing.T) {
	delivery := &fakeDelivery{}
	d, store, _, _ := newTestDispatcher(delivery)

	u := Update{Kind: KindFinal, Meta: Meta{ChatID: 6, MessageID: 60}, Text: "unlogged"}
	d.handle(context.Background(), u)

	if store.savedTurnID != 0 || store.createCalled {
		t.Fatalf("persistence must be skipped when no turn was logged")
	}
}

func TestDispatcher_TerminalNotes(t *testing.T) {
	cases := []struct {
		kind Kind
		text string
		err  string
		want string
	}{
		{KindCancelled, "partial", "", "<r>partial" + noteCancelled},
		{KindTimedOut, "partial", "", "<r>partial" + noteTimedOut},
		{KindErrored, "partial", "boom", "<r>partial\n\n[Generation failed: boom]"},
		{KindErrored, "", "boom", "Request to the model failed: boom"},
	}
	for _, tc := range cases {
		delivery := &fakeDelivery{}
		d, _, _, _ := newTestDispatcher(delivery)
		d.handle(context.Background(), Update{
			Kind:   tc.kind,
			Meta:   Meta{ChatID: 7, MessageID: 70},
			Text:   tc.text,
			ErrMsg: tc.err,
		})
		if len(delivery.edits) != 1 {
			t.Fatalf("%s: expected one edit, got %d", tc.kind, len(delivery.edits))
		}
		if delivery.edits[0].text != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.kind, tc.want, delivery.edits[0].text)
		}
	}
}

func TestDispatcher_OversizedFinalIsChunked(t *testing.T) {
	delivery := &fakeDelivery{maxLen: 10}
	d, _, _, _ := newTestDispatcher(delivery)

	// renders to 25 runes -> three parts
	u := Update{Kind: KindFinal, Meta: Meta{ChatID: 8, MessageID: 80}, Text: strings.Repeat("x", 22)}
	d.handle(context.Background(), u)

	if len(delivery.deletes) != 1 || delivery.deletes[0] != 80 {
		t.Fatalf("in-progress message should be deleted, got %v", delivery.deletes)
	}
	if len(delivery.edits) != 0 {
		t.Fatalf("chunked delivery must not edit, got %d edits", len(delivery.edits))
	}
	if len(delivery.sends) != 3 {
		t.Fatalf("expected 3 part sends, got %d", len(delivery.sends))
	}
	for i, s := range delivery.sends {
		prefix := fmt.Sprintf("Part %d/3:\n\n", i+1)
		if !strings.HasPrefix(s.text, prefix) {
			t.Fatalf("part %d: expected prefix %q, got %q", i+1, prefix, s.text)
		}
		wantCtrl := ControlsNone
		if i == len(delivery.sends)-1 {
			wantCtrl = ControlsRegenerate
		}
		if s.controls != wantCtrl {
			t.Fatalf("part %d: expected controls %d, got %d", i+1, wantCtrl, s.controls)
		}
	}
}

func TestDispatcher_OversizedPartialIsTruncated(t *testing.T) {
	delivery := &fakeDelivery{maxLen: 10}
	d, _, _, _ := newTestDispatcher(delivery)

	u := Update{Kind: KindPartial, Meta: Meta{ChatID: 9, MessageID: 90}, Text: strings.Repeat("y", 50)}
	d.handle(context.Background(), u)

	if len(delivery.edits) != 1 {
		t.Fatalf("expected one truncated edit, got %d", len(delivery.edits))
	}
	text := delivery.edits[0].text
	if len([]rune(text)) != 10 || !strings.HasSuffix(text, "...") {
		t.Fatalf("expected 10-rune ellipsis truncation, got %q", text)
	}
}

func TestDispatcher_StaleTerminalKeepsSuccessorEntry(t *testing.T) {
	delivery := &fakeDelivery{}
	d, _, _, registry := newTestDispatcher(delivery)

	stale := registry.Start(11)
	registry.Start(11) // supersedes

	d.handle(context.Background(), Update{
		Kind:  KindCancelled,
		Meta:  Meta{ChatID: 11, MessageID: 110},
		token: stale,
	})

	if !registry.IsActive(11) {
		t.Fatalf("terminal update from a superseded stream cleared the successor")
	}
}
