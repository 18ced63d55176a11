package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMockProvider_FIFOResponses(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`[{"question":"one"}]`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		MockResponse{Err: &ErrRateLimit{}},
	)

	resp, err := mock.Generate(context.Background(), Request{System: "sys"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.InputTokens != 10 || resp.StopReason != "end" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %T", err)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable from empty queue, got %T", err)
	}

	if mock.CallCount() != 3 || mock.Calls[0].System != "sys" {
		t.Fatalf("calls not recorded: %+v", mock.Calls)
	}
}

func TestResponseText(t *testing.T) {
	var nilResp *Response
	if nilResp.Text() != "" {
		t.Fatal("nil response should have empty text")
	}
	r := &Response{Content: json.RawMessage("  \n[1,2]\n ")}
	if r.Text() != "[1,2]" {
		t.Fatalf("expected trimmed text, got %q", r.Text())
	}
}

func TestComplete_DefaultsMaxTokens(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`ok`)})

	if _, err := Complete(context.Background(), mock, "p", CompleteOptions{System: "s", Temperature: 0.7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := mock.Calls[0]
	if req.MaxTokens != DefaultMaxTokens {
		t.Fatalf("expected default max tokens, got %d", req.MaxTokens)
	}
	if req.System != "s" || req.Temperature != 0.7 {
		t.Fatalf("options not forwarded: %+v", req)
	}
}

func TestComplete_PropagatesError(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrProviderUnavailable{}})
	if _, err := Complete(context.Background(), mock, "p", CompleteOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}

	ctx = WithPurpose(ctx, PurposeRelevanceCheck)
	if p := PurposeFrom(ctx); p != PurposeRelevanceCheck {
		t.Fatalf("expected %q, got %q", PurposeRelevanceCheck, p)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"gemini without key", Config{Provider: "gemini"}, true},
		{"gemini with key", Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "k"}}, false},
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"openai with key", Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "k"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"mock needs no key", Config{Provider: "mock"}, false},
		{"negative timeout", Config{Provider: "mock", Timeout: -time.Second}, true},
		{"unknown provider", Config{Provider: "unknown"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("QFORGE_LLM_PROVIDER", "openai")
	t.Setenv("QFORGE_OPENAI_API_KEY", "sk-test")
	t.Setenv("QFORGE_OPENAI_MODEL", "gpt-4.1")
	t.Setenv("QFORGE_LLM_TIMEOUT", "45s")
	t.Setenv("QFORGE_LLM_QUOTA_RETRIES", "5")

	cfg := ConfigFromEnv()
	if cfg.Provider != "openai" || cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.Model != "gpt-4.1" {
		t.Fatalf("unexpected openai config: %+v", cfg)
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("expected 5 quota attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestDiscoverConfig(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
	if _, ok := DiscoverConfig(); ok {
		t.Fatal("expected no provider discovered")
	}

	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("OPENAI_API_KEY", "o")
	cfg, ok := DiscoverConfig()
	if !ok || cfg.Provider != "openai" {
		t.Fatalf("expected openai to win priority, got %q", cfg.Provider)
	}
}

func TestNewProvider_Mock(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Provider: "mock"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "mock" {
		t.Fatalf("expected mock, got %q", p.ModelID())
	}
}

func TestLookupCost(t *testing.T) {
	if c := LookupCost("gemini-2.0-flash"); c == nil || c.InputPerMTok != 0.1 {
		t.Fatalf("exact lookup failed: %+v", c)
	}
	if c := LookupCost("gemini-2.0-flash-001"); c == nil || c.InputPerMTok != 0.1 {
		t.Fatalf("prefix lookup failed: %+v", c)
	}
	if c := LookupCost("gpt-4o-mini-2024-07-18"); c == nil || c.InputPerMTok != 0.15 {
		t.Fatalf("longest prefix should win: %+v", c)
	}
	if LookupCost("unknown-model") != nil {
		t.Fatal("expected nil for unknown model")
	}
	if got := (ModelCost{InputPerMTok: 1, OutputPerMTok: 2}).Cost(1_000_000, 500_000); got != 2 {
		t.Fatalf("expected cost 2, got %f", got)
	}
}
