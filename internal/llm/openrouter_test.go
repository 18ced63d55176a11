package llm

import "testing"

func TestNewOpenRouterProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OpenRouterConfig
		wantErr bool
		model   string
	}{
		{
			name:  "default base URL",
			cfg:   OpenRouterConfig{APIKey: "sk-or-test", Model: "google/gemini-2.0-flash-exp"},
			model: "google/gemini-2.0-flash-exp",
		},
		{
			name:  "model IDs pass through unmapped",
			cfg:   OpenRouterConfig{APIKey: "sk-or-test", Model: "gpt-4o"},
			model: "gpt-4o",
		},
		{
			name:  "custom base URL",
			cfg:   OpenRouterConfig{APIKey: "sk-or-test", Model: "meta-llama/llama-3-8b", BaseURL: "https://router.example/v1"},
			model: "meta-llama/llama-3-8b",
		},
		{
			name:    "missing key",
			cfg:     OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewOpenRouterProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.ModelID() != tt.model {
				t.Errorf("model = %q, want %q", p.ModelID(), tt.model)
			}
		})
	}
}
