package questiongen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/qforge/internal/llm"
	"github.com/abhisek/qforge/internal/policy"
)

const mcqReply = `Here are your questions:
[
  {
    "question": "What does the accrual basis recognise?",
    "options": ["Revenue when earned", "Revenue when received", "Only cash expenses", "Only capital items"],
    "correct_answer": "Revenue when earned",
    "explanation": "Accrual accounting records revenue when it is earned.",
    "metadata": {"topic": "Accounting Standards", "subtopic": "", "difficult_level": "medium"}
  },
  {
    "question": "Which statement is prepared first?",
    "options": ["Trial balance", "Balance sheet", "Cash flow", "Notes"],
    "correct_answer": "Trial balance",
    "explanation": ["A is correct", "B is wrong", "C is wrong", "D is wrong"],
    "metadata": {"topic": "Accounting Standards", "difficulty": "MEDIUM"}
  }
]
Hope this helps!`

func mcqRequest() Request {
	r := Request{
		Subject:      "Financial Accounting",
		Topic:        "Accounting Standards",
		NumQuestions: 2,
		QuestionType: TypeMCQ,
	}
	r.Normalize()
	return r
}

func testPolicy() *policy.Policy {
	return &policy.Policy{
		Code:           "bcom",
		EducationLevel: "undergraduate",
		Prompts: policy.PromptCustomization{
			FocusInstruction: "Include numerical examples",
		},
	}
}

func TestGenerate_MCQ(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(mcqReply)})
	gen := New(mock, DefaultConfig(), nil)

	qs, err := gen.Generate(context.Background(), mcqRequest(), "Revenue is recognised when earned.", testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}

	q := qs[0]
	if q.Kind != TypeMCQ || q.MCQ == nil || q.Descriptive != nil {
		t.Fatalf("first question has wrong variant: %+v", q)
	}
	if q.MCQ.CorrectAnswer != "Revenue when earned" {
		t.Errorf("correct answer = %q", q.MCQ.CorrectAnswer)
	}
	if q.Metadata.Difficulty != "MEDIUM" {
		t.Errorf("difficulty = %q, want MEDIUM from difficult_level", q.Metadata.Difficulty)
	}
	if !q.HasMetadata {
		t.Error("expected metadata to be recorded")
	}
	if got := qs[1].MCQ.Explanation; !strings.Contains(got, "A is correct\nB is wrong") {
		t.Errorf("list explanation not joined: %q", got)
	}

	if mock.CallCount() != 1 {
		t.Fatalf("expected one backend call, got %d", mock.CallCount())
	}
	prompt := mock.Calls[0].Messages[0].Content
	for _, want := range []string{"Financial Accounting", "Accounting Standards", "Include numerical examples", "Revenue is recognised when earned.", "Generate 2"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if mock.Calls[0].Schema != nil {
		t.Error("free-text completion must not send a schema")
	}
}

func TestGenerate_EmptyContentUsesGeneralKnowledge(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(mcqReply)})
	gen := New(mock, DefaultConfig(), nil)

	if _, err := gen.Generate(context.Background(), mcqRequest(), "  ", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := mock.Calls[0].Messages[0].Content
	if !strings.Contains(prompt, "general knowledge") {
		t.Error("prompt should fall back to general knowledge")
	}
	if !strings.Contains(prompt, "Generate MEDIUM level questions") {
		t.Error("prompt should use the difficulty-based focus instruction")
	}
	if !strings.Contains(prompt, "about Accounting Standards") {
		t.Error("prompt should use the topic-based question style")
	}
}

func TestGenerate_Descriptive(t *testing.T) {
	reply := `{"questions": [{
		"question": "Explain the going concern concept.",
		"answer": "The going concern concept assumes the business will continue operating.",
		"metadata": {"topic": "Accounting Standards", "difficulty": "easy",
			"ai_answer_keywords": ["going concern", "continuity", "assumption", "valuation", "liquidation", "future", "operations"]}
	}]}`
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(reply)})
	gen := New(mock, DefaultConfig(), nil)

	req := Request{
		Subject:            "Financial Accounting",
		Topic:              "Accounting Standards",
		NumQuestions:       1,
		QuestionType:       TypeDescriptive,
		DescriptiveSubtype: SubtypeVeryShort,
		UserPrompt:         "Focus on Indian GAAP.",
	}
	req.Normalize()

	qs, err := gen.Generate(context.Background(), req, "", testPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1", len(qs))
	}
	q := qs[0]
	if q.Descriptive == nil || q.MCQ != nil {
		t.Fatalf("wrong variant: %+v", q)
	}
	if q.Descriptive.Marks != 2 || q.Descriptive.WordLimit != 50 {
		t.Errorf("marks/word limit = %d/%d, want 2/50 from the subtype table", q.Descriptive.Marks, q.Descriptive.WordLimit)
	}
	if len(q.Metadata.AnswerKeywords) != 5 {
		t.Errorf("keywords = %d, want capped at 5", len(q.Metadata.AnswerKeywords))
	}
	if q.DescriptiveSubtype != SubtypeVeryShort {
		t.Errorf("subtype = %q", q.DescriptiveSubtype)
	}

	prompt := mock.Calls[0].Messages[0].Content
	for _, want := range []string{"very short answer", "2 marks", "Focus on Indian GAAP."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerate_BackendError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{Err: errors.New("quota exceeded")}})
	gen := New(mock, DefaultConfig(), nil)

	_, err := gen.Generate(context.Background(), mcqRequest(), "", nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T: %v", err, err)
	}
	var rl *llm.ErrRateLimit
	if !errors.As(err, &rl) {
		t.Error("backend error should stay reachable through Unwrap")
	}
}

func TestGenerate_ParseError(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose only", "I cannot help with that."},
		{"broken array", `[{"question": "x",]`},
		{"empty list", `[]`},
		{"not objects", `["what is x?", "what is y?"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(tt.reply)})
			gen := New(mock, DefaultConfig(), nil)

			_, err := gen.Generate(context.Background(), mcqRequest(), "", nil)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %T: %v", err, err)
			}
		})
	}
}
