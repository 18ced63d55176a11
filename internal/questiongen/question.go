package questiongen

import (
	"encoding/json"
	"fmt"

	"github.com/abhisek/qforge/internal/content"
)

// Question is one generated question. Kind selects which of MCQ and
// Descriptive is set.
type Question struct {
	Kind        string
	Text        string
	MCQ         *MCQ
	Descriptive *Descriptive
	Metadata    Metadata
	// HasMetadata records whether the model emitted a metadata block.
	HasMetadata        bool
	DescriptiveSubtype string
	Hierarchy          content.Hierarchy
}

// MCQ is the multiple-choice variant. CorrectAnswer is expected to be the
// text of one option but is kept as emitted.
type MCQ struct {
	Options       []string
	CorrectAnswer string
	// HasCorrectAnswer is false when the model omitted the field.
	HasCorrectAnswer bool
	Explanation      string
}

// Descriptive is the written-answer variant.
type Descriptive struct {
	Answer    string
	Marks     int
	WordLimit int
}

// Metadata is the topical tagging of a question.
type Metadata struct {
	Topic          string   `json:"topic"`
	TopicID        string   `json:"topic_id,omitempty"`
	Subtopic       string   `json:"subtopic,omitempty"`
	Difficulty     string   `json:"difficulty"`
	AnswerKeywords []string `json:"ai_answer_keywords,omitempty"`
}

// IsMCQ reports whether q is a multiple-choice question.
func (q Question) IsMCQ() bool { return q.Kind == TypeMCQ }

// Stamp records the institutional scope on every question.
func Stamp(qs []Question, h content.Hierarchy) {
	for i := range qs {
		qs[i].Hierarchy = h
	}
}

type questionJSON struct {
	Question        string    `json:"question"`
	Options         []string  `json:"options,omitempty"`
	CorrectAnswer   *string   `json:"correct_answer,omitempty"`
	Explanation     string    `json:"explanation,omitempty"`
	Answer          string    `json:"answer,omitempty"`
	Marks           int       `json:"marks,omitempty"`
	WordLimit       int       `json:"word_limit,omitempty"`
	Metadata        *Metadata `json:"metadata,omitempty"`
	QuestionType    string    `json:"question_type"`
	DescriptiveType string    `json:"descriptive_type,omitempty"`
	University      string    `json:"university,omitempty"`
	Course          string    `json:"course,omitempty"`
	Department      string    `json:"department,omitempty"`
	Semester        int       `json:"semester,omitempty"`
	PaperType       string    `json:"paper_type,omitempty"`
}

// MarshalJSON writes the flat wire form shared with the question bank.
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		Question:        q.Text,
		QuestionType:    q.Kind,
		DescriptiveType: q.DescriptiveSubtype,
		University:      q.Hierarchy.University,
		Course:          q.Hierarchy.Course,
		Department:      q.Hierarchy.Department,
		Semester:        q.Hierarchy.Semester,
		PaperType:       q.Hierarchy.PaperType,
	}
	if q.HasMetadata {
		md := q.Metadata
		out.Metadata = &md
	}
	if q.MCQ != nil {
		out.Options = q.MCQ.Options
		out.Explanation = q.MCQ.Explanation
		if q.MCQ.HasCorrectAnswer {
			ans := q.MCQ.CorrectAnswer
			out.CorrectAnswer = &ans
		}
	}
	if q.Descriptive != nil {
		out.Answer = q.Descriptive.Answer
		out.Marks = q.Descriptive.Marks
		out.WordLimit = q.Descriptive.WordLimit
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the wire form, using the same tolerant coercion as
// model output.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, _ := raw["question_type"].(string)
	if kind != TypeDescriptive {
		kind = TypeMCQ
	}
	subtype, _ := raw["descriptive_type"].(string)

	var issues []FieldIssue
	decoded := coerce(raw, 0, kind, subtype, &issues)
	if len(issues) > 0 {
		return &ParseError{Issues: issues, Err: fmt.Errorf("malformed question")}
	}
	decoded.Hierarchy = content.Hierarchy{
		University: stringField(raw, "university"),
		Course:     stringField(raw, "course"),
		Department: stringField(raw, "department"),
		PaperType:  stringField(raw, "paper_type"),
	}
	if n, ok := raw["semester"].(float64); ok {
		decoded.Hierarchy.Semester = int(n)
	}
	*q = decoded
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
