// Package questiongen turns retrieved course content into question sets
// using a generative model.
package questiongen

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/llm"
	"github.com/abhisek/qforge/internal/policy"
)

// Generator produces one batch of questions per call.
type Generator interface {
	Generate(ctx context.Context, req Request, retrieved string, pol *policy.Policy) ([]Question, error)
}

// Config tunes the model call.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   8192,
		Temperature: 0.7,
	}
}

// GenerationError wraps a backend failure. Stage is "backend" or "parse".
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("question generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// LLMGenerator implements Generator using an llm.Provider.
type LLMGenerator struct {
	provider llm.Provider
	config   Config
	log      *zap.Logger
}

// New creates an LLMGenerator.
func New(provider llm.Provider, cfg Config, log *zap.Logger) *LLMGenerator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &LLMGenerator{provider: provider, config: cfg, log: log}
}

// Generate calls the model once and parses its reply. Backend failures
// come back as *GenerationError and unusable output as *ParseError.
func (g *LLMGenerator) Generate(ctx context.Context, req Request, retrieved string, pol *policy.Policy) ([]Question, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestionGen)

	prompt := buildPrompt(req, retrieved, pol)
	text, err := llm.Complete(ctx, g.provider, prompt, llm.CompleteOptions{
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return nil, &GenerationError{Stage: "backend", Err: err}
	}

	items, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	subtype := ""
	if req.QuestionType == TypeDescriptive {
		subtype = req.DescriptiveSubtype
	}
	qs, issues, err := Decode(items, req.QuestionType, subtype)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Raw = text
		}
		return nil, err
	}
	for _, is := range issues {
		g.log.Warn("coerced malformed field", zap.String("issue", is.String()))
	}

	g.log.Debug("questions generated",
		zap.String("question_type", req.QuestionType),
		zap.Int("requested", req.NumQuestions),
		zap.Int("generated", len(qs)))
	return qs, nil
}
