package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikey/mail-notifier/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAIClient(openai.NewClientWithConfig(cfg), "test/model", 0, 0, zap.NewNop())
}

func TestComplete(t *testing.T) {
	var got openai.ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","model":"test/model","choices":[{"index":0,"message":{"role":"assistant","content":"0.85"}}]}`))
	})

	prompt := &core.Prompt{
		System:   "rate it",
		Examples: []core.Exchange{{User: "a", Assistant: "0.1"}, {User: "b", Assistant: "0.9"}},
		Input:    "c",
	}
	resp, err := client.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "0.85" || resp.Model != "test/model" {
		t.Errorf("completion = %+v", resp)
	}

	if got.Model != "test/model" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Temperature <= 0 || got.Temperature > 1e-6 {
		t.Errorf("temperature = %v, want a near-zero value", got.Temperature)
	}
	wantRoles := []string{"system", "user", "assistant", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages = %d, want %d", len(got.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[5].Content != "c" {
		t.Errorf("last message = %q", got.Messages[5].Content)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`},
		{"no choices", http.StatusOK, `{"id":"1","choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			if _, err := client.Complete(context.Background(), &core.Prompt{Input: "x"}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
