package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient_EmptyKeyDisables(t *testing.T) {
	c := NewClient(Config{})
	if c.Enabled() {
		t.Fatalf("client without key should be disabled")
	}
	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error from disabled client")
	}
}

func TestComplete_SendsSystemHistoryAndLimits(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hi there  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret", BaseURL: srv.URL + "/"})
	out, err := c.Complete(context.Background(), Request{
		System:      "You are Anna.",
		Messages:    []Message{{Role: "user", Content: "hello"}},
		MaxTokens:   200,
		Temperature: 0.8,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "  hi there  " {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != DefaultModel || got.MaxTokens != 200 || got.Temperature != 0.8 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestComplete_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestComplete_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, MaxPerMin: 1})
	if _, err := c.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("second call should be rate limited")
	}
}
