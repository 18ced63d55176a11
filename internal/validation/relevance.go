package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/llm"
	"github.com/abhisek/qforge/internal/questiongen"
)

// RelevanceChecker judges whether questions belong to the expected topics.
type RelevanceChecker interface {
	Check(ctx context.Context, qs []questiongen.Question, topics []string, subject string) Result
}

// CheckerRelevance names the topic-relevance checker in results.
const CheckerRelevance = "relevance"

// broadTopicKeywords exempt a topic from strict matching.
var broadTopicKeywords = []string{"miscellaneous", "misc", "general", "others"}

// IsBroadTopic reports whether any topic matches a broad-topic keyword.
func IsBroadTopic(topics []string) bool {
	for _, t := range topics {
		lt := strings.ToLower(t)
		for _, kw := range broadTopicKeywords {
			if strings.Contains(lt, kw) {
				return true
			}
		}
	}
	return false
}

// verdictSchema validates verdict lists recovered from free-text replies.
// Only the index and the verdict itself are required.
var verdictSchema = &llm.Schema{
	Name:        "relevance-verdicts",
	Description: "Per-question topic relevance verdicts",
	Definition: map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question_index": map[string]any{"type": "integer", "minimum": 0},
				"is_relevant":    map[string]any{"type": "boolean"},
				"actual_topic":   map[string]any{"type": "string"},
				"reason":         map[string]any{"type": "string"},
				"suggestion":     map[string]any{"type": "string"},
			},
			"required": []string{"question_index", "is_relevant"},
		},
	},
}

// reportSchema is the structured output requested from the grader. Strict
// providers need every property required and no extra properties.
var reportSchema = &llm.Schema{
	Name:        "relevance-report",
	Description: "Topic relevance verdict for every generated question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"validation_results": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question_index": map[string]any{"type": "integer"},
						"is_relevant":    map[string]any{"type": "boolean"},
						"actual_topic":   map[string]any{"type": "string"},
						"reason":         map[string]any{"type": "string"},
						"suggestion":     map[string]any{"type": "string"},
					},
					"required":             []string{"question_index", "is_relevant", "actual_topic", "reason", "suggestion"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"validation_results"},
		"additionalProperties": false,
	},
}

const relevancePrompt = `You are an expert academic content validator for college examinations.

Validate that each generated question is relevant to the specified topics.

Subject: %s
Expected topics: %s

Generated questions:
%s

Criteria:
1. Check whether each question's content aligns with the specified topics.
2. Identify questions that are off-topic or belong to different topics.
3. Judge conceptual alignment, not exact keyword matching; questions may test concepts indirectly related to the topic.

Return ONLY this JSON, no other text:
{
  "validation_results": [
    {
      "question_index": 0,
      "is_relevant": true,
      "actual_topic": "topic the question belongs to",
      "reason": "why it is or is not relevant",
      "suggestion": "how to fix it, empty if relevant"
    }
  ]
}`

// LLMRelevanceChecker asks the model to grade relevance. Its own failures
// produce an invalid result carrying the error instead of an error value.
type LLMRelevanceChecker struct {
	provider llm.Provider
	log      *zap.Logger
}

// NewLLMRelevanceChecker creates a model-graded relevance checker.
func NewLLMRelevanceChecker(provider llm.Provider, log *zap.Logger) *LLMRelevanceChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMRelevanceChecker{provider: provider, log: log}
}

func (c *LLMRelevanceChecker) Check(ctx context.Context, qs []questiongen.Question, topics []string, subject string) Result {
	if len(qs) == 0 {
		return Result{Checker: CheckerRelevance, Suggestions: []string{"No questions to validate"}, Reason: "no questions"}
	}
	if len(topics) == 0 {
		return Result{Checker: CheckerRelevance, Valid: true, Reason: "no expected topics"}
	}
	if IsBroadTopic(topics) {
		return Result{
			Checker:     CheckerRelevance,
			Valid:       true,
			Reason:      "broad topic",
			Suggestions: []string{"Miscellaneous topic - broad validation applied"},
		}
	}

	body, err := json.MarshalIndent(qs, "", "  ")
	if err != nil {
		return failed(fmt.Errorf("encode questions: %w", err))
	}
	prompt := fmt.Sprintf(relevancePrompt, subject, strings.Join(topics, ", "), body)

	ctx = llm.WithPurpose(ctx, llm.PurposeRelevanceCheck)
	text, err := llm.Complete(ctx, c.provider, prompt, llm.CompleteOptions{Temperature: 0, Schema: reportSchema})
	if err != nil {
		var invalid *llm.ErrInvalidResponse
		if !errors.As(err, &invalid) || len(invalid.Content) == 0 {
			c.log.Warn("relevance grading call failed", zap.Error(err))
			return failed(err)
		}
		// A reply that misses the strict schema may still hold usable verdicts.
		c.log.Debug("structured verdicts rejected, parsing reply text", zap.Error(err))
		text = string(invalid.Content)
	}

	verdicts, err := parseVerdicts(text)
	if err != nil {
		c.log.Warn("relevance verdicts unusable", zap.Error(err))
		return failed(err)
	}

	res := Result{Checker: CheckerRelevance, Details: verdicts}
	for _, v := range verdicts {
		if v.IsRelevant {
			continue
		}
		res.MismatchedIndices = append(res.MismatchedIndices, v.QuestionIndex)
		res.Issues = append(res.Issues, fmt.Sprintf("Question %d is off-topic: %s", v.QuestionIndex+1, v.Reason))
		if v.Suggestion != "" {
			res.Suggestions = append(res.Suggestions, fmt.Sprintf("Q%d: %s", v.QuestionIndex+1, v.Suggestion))
		}
	}
	res.Valid = len(res.MismatchedIndices) == 0
	if res.Valid {
		res.Reason = "all questions relevant"
	} else {
		res.Reason = fmt.Sprintf("%d question(s) off-topic", len(res.MismatchedIndices))
	}
	return res
}

func failed(err error) Result {
	return Result{
		Checker:     CheckerRelevance,
		Reason:      "relevance check failed",
		Suggestions: []string{"Validation failed: " + err.Error()},
		Error:       err.Error(),
	}
}

// parseVerdicts accepts a bare list or an object holding
// "validation_results", whichever opens first in text.
func parseVerdicts(text string) ([]Verdict, error) {
	raw, err := verdictPayload(text)
	if err != nil {
		return nil, err
	}
	if err := llm.ValidateValue(verdictSchema, raw); err != nil {
		return nil, err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var verdicts []Verdict
	if err := json.Unmarshal(data, &verdicts); err != nil {
		return nil, fmt.Errorf("decode verdicts: %w", err)
	}
	return verdicts, nil
}

func verdictPayload(text string) (any, error) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if span, ok := jsonSpan(text, '{', '}'); ok {
			var obj map[string]any
			if err := json.Unmarshal([]byte(span), &obj); err != nil {
				return nil, fmt.Errorf("decode verdicts: %w", err)
			}
			inner, ok := obj["validation_results"]
			if !ok {
				return nil, errors.New("unexpected verdict format")
			}
			return inner, nil
		}
	}
	if span, ok := jsonSpan(text, '[', ']'); ok {
		var raw any
		if err := json.Unmarshal([]byte(span), &raw); err != nil {
			return nil, fmt.Errorf("decode verdicts: %w", err)
		}
		return raw, nil
	}
	return nil, errors.New("no JSON found in grading response")
}

// jsonSpan returns text from the first open to the last close delimiter.
// It reports false when either is missing or they are out of order.
func jsonSpan(text string, lo, hi byte) (string, bool) {
	start := strings.IndexByte(text, lo)
	end := strings.LastIndexByte(text, hi)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
