package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := newOpenAIProviderRaw(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func chatCompletion(content string, finish openai.FinishReason) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{
			"prompt_tokens":     40,
			"completion_tokens": 25,
			"total_tokens":      65,
		},
	}
}

func writeOpenAIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"type": "error", "message": message},
	})
}

func TestOpenAIProvider_FreeTextCompletion(t *testing.T) {
	body := "```json\n[{\"question\":\"What is a ledger?\"}]\n```"
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion(body, openai.FinishReasonStop))
	})

	resp, err := p.Generate(context.Background(), Request{
		System:    "You write exam questions.",
		Messages:  []Message{{Role: RoleUser, Content: "Generate 1 question."}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != body {
		t.Fatalf("expected raw completion, got %q", resp.Text())
	}
	if resp.Usage.InputTokens != 40 || resp.Usage.OutputTokens != 25 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.StopReason != "end" {
		t.Fatalf("expected stop reason 'end', got %q", resp.StopReason)
	}
}

func TestOpenAIProvider_TruncatedStructuredOutput(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion(`{"validation_results":[`, openai.FinishReasonLength))
	})

	_, err := p.Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "check"}},
		MaxTokens: 10,
		Schema:    testSchema(),
	})
	var mt *ErrMaxTokensExceeded
	if !errors.As(err, &mt) {
		t.Fatalf("expected ErrMaxTokensExceeded, got %T (%v)", err, err)
	}
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		check   func(error) bool
	}{
		{"429 is quota", http.StatusTooManyRequests, "Rate limit exceeded", func(err error) bool {
			var rl *ErrRateLimit
			return errors.As(err, &rl)
		}},
		{"500 is unavailable", http.StatusInternalServerError, "Internal server error", func(err error) bool {
			var u *ErrProviderUnavailable
			return errors.As(err, &u)
		}},
		{"quota text on 403", http.StatusForbidden, "You exceeded your current quota", func(err error) bool {
			var rl *ErrRateLimit
			return errors.As(err, &rl)
		}},
		{"plain 400", http.StatusBadRequest, "bad request", func(err error) bool {
			var u *ErrProviderUnavailable
			return errors.As(err, &u)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
				writeOpenAIError(w, tt.status, tt.message)
			})
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "test"}},
				MaxTokens: 100,
			})
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected classification: %T (%v)", err, err)
			}
		})
	}
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error for empty API key")
	}

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o", BaseURL: "https://example.test/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "gpt-4o" {
		t.Fatalf("expected 'gpt-4o', got %q", p.ModelID())
	}
}
