package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is the generative backend abstraction. The question generator
// and the relevance checker both talk to the model through it.
type Provider interface {
	// Generate sends a prompt to the model. When req.Schema is set the
	// provider asks for structured output and validates it; otherwise the
	// response Content is the raw completion text.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation. Question generation is single-turn,
	// so this normally holds one user message.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// Nil means free-text completion.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies this schema, e.g. "relevance-verdicts".
	Name string

	// Description is sent to the model to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the model's output.
type Response struct {
	// Content is the validated JSON object when a Schema was provided,
	// or the raw completion text otherwise.
	Content json.RawMessage

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Text returns the response content as trimmed text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(string(r.Content))
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompleteOptions tunes a single completion. A non-nil Schema requests
// structured output; providers without it still return free text.
type CompleteOptions struct {
	System      string
	MaxTokens   int
	Temperature float64
	Schema      *Schema
}

// DefaultMaxTokens is used when CompleteOptions.MaxTokens is unset.
const DefaultMaxTokens = 4096

// Complete sends prompt as a single user message and returns the raw
// completion text, or the validated JSON when opts.Schema is set.
func Complete(ctx context.Context, p Provider, prompt string, opts CompleteOptions) (string, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	resp, err := p.Generate(ctx, Request{
		System:      opts.System,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Schema:      opts.Schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
