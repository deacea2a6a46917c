package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func collectStream(t *testing.T, chunks <-chan string, errs <-chan error) ([]string, error) {
	t.Helper()
	var (
		got      []string
		firstErr error
	)
	timeout := time.After(5 * time.Second)
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			got = append(got, c)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-timeout:
			t.Fatalf("stream did not finish")
		}
	}
	return got, firstErr
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
}

func TestStreamChat_ForwardsDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{"content":""}}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "test-key", "", "")
	chunks, errs := p.StreamChat(context.Background(), "some/model", []Message{{Role: "user", Content: "hi"}})

	got, err := collectStream(t, chunks, errs)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if strings.Join(got, "") != "Hello" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestStreamChat_SkipsMalformedEvents(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"before"}}]}`,
		`data: {this is not json`,
		`data: {"choices":[{"delta":{"content":" after"}}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "test-key", "", "")
	chunks, errs := p.StreamChat(context.Background(), "some/model", nil)

	got, err := collectStream(t, chunks, errs)
	if err != nil {
		t.Fatalf("a malformed frame must not end the stream: %v", err)
	}
	if strings.Join(got, "") != "before after" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestStreamChat_InlineErrorEndsStream(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"some"}}]}`,
		`data: {"error":{"message":"rate limited"}}`,
	})
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "test-key", "", "")
	chunks, errs := p.StreamChat(context.Background(), "some/model", nil)

	got, err := collectStream(t, chunks, errs)
	if err == nil || err.Error() != "rate limited" {
		t.Fatalf("expected the provider error, got %v", err)
	}
	if strings.Join(got, "") != "some" {
		t.Fatalf("chunks before the error should still be forwarded: %v", got)
	}
}

func TestStreamChat_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "bad-key", "", "")
	chunks, errs := p.StreamChat(context.Background(), "some/model", nil)

	got, err := collectStream(t, chunks, errs)
	if err == nil || !strings.Contains(err.Error(), "invalid key") {
		t.Fatalf("expected the body in the error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("no chunks expected on a failed request: %v", got)
	}
}

func TestStreamChat_RejectsMissingModel(t *testing.T) {
	p := NewOpenRouterProvider("http://unused", "test-key", "", "")
	chunks, errs := p.StreamChat(context.Background(), "  ", nil)

	_, err := collectStream(t, chunks, errs)
	if err == nil || !strings.Contains(err.Error(), "model is required") {
		t.Fatalf("expected a model validation error, got %v", err)
	}
}

func TestModels_ParsesCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{
			"id":"meta/llama",
			"name":"Llama",
			"context_length":8192,
			"architecture":{"modality":"text","tokenizer":"Llama3"},
			"pricing":{"prompt":"0","completion":"0"},
			"top_provider":{"context_length":131072,"is_moderated":true}
		}]}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "test-key", "", "")
	models, err := p.Models(context.Background())
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	m := models[0]
	if m.ID != "meta/llama" || m.ContextLength != 8192 {
		t.Fatalf("unexpected model: %+v", m)
	}
	if m.TopProvider.ContextLength != 131072 || !m.TopProvider.IsModerated {
		t.Fatalf("top provider not parsed: %+v", m.TopProvider)
	}
	if m.Pricing.Prompt != "0" || m.Pricing.Completion != "0" {
		t.Fatalf("pricing not parsed: %+v", m.Pricing)
	}
}
