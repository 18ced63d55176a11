package questiongen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FieldIssue is one coercion problem found in model output. Index is the
// 0-based position of the element, or -1 for the payload as a whole.
type FieldIssue struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

func (f FieldIssue) String() string {
	if f.Index < 0 {
		return f.Problem
	}
	if f.Field == "" {
		return fmt.Sprintf("question %d: %s", f.Index+1, f.Problem)
	}
	return fmt.Sprintf("question %d: %s: %s", f.Index+1, f.Field, f.Problem)
}

// ParseError reports model output that could not be turned into questions.
type ParseError struct {
	Raw    string
	Issues []FieldIssue
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse model output")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, is := range e.Issues {
		b.WriteString("; ")
		b.WriteString(is.String())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNoJSON = errors.New("no JSON found in response")

// ExtractJSON pulls the question list out of free text. It takes the span
// from the first '[' to the last ']'; failing that, the span from the
// first '{' to the last '}', unwrapping a "questions" key when present and
// otherwise treating the object as a single question.
func ExtractJSON(raw string) ([]any, error) {
	if start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]"); start >= 0 && end > start {
		var list []any
		if err := json.Unmarshal([]byte(raw[start:end+1]), &list); err != nil {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("decode array: %w", err)}
		}
		return list, nil
	}

	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("decode object: %w", err)}
		}
		if inner, ok := obj["questions"]; ok {
			list, ok := inner.([]any)
			if !ok {
				return nil, &ParseError{Raw: raw, Err: fmt.Errorf("\"questions\" is %s, not a list", jsonKind(inner))}
			}
			return list, nil
		}
		return []any{obj}, nil
	}

	return nil, &ParseError{Raw: raw, Err: errNoJSON}
}

// Decode coerces extracted elements into questions of the given kind.
// Missing fields are left empty for the structural checker; values of the
// wrong type are reported as issues. Elements that are not objects make
// the whole payload unusable and yield a *ParseError listing every issue.
func Decode(items []any, kind, subtype string) ([]Question, []FieldIssue, error) {
	if len(items) == 0 {
		return nil, nil, &ParseError{Err: errors.New("response contained no questions")}
	}

	var (
		issues []FieldIssue
		fatal  bool
		out    = make([]Question, 0, len(items))
	)
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			fatal = true
			issues = append(issues, FieldIssue{Index: i, Problem: fmt.Sprintf("expected an object, got %s", jsonKind(item))})
			continue
		}
		out = append(out, coerce(obj, i, kind, subtype, &issues))
	}
	if fatal {
		return nil, issues, &ParseError{Issues: issues, Err: errors.New("response is not a list of question objects")}
	}
	return out, issues, nil
}

func coerce(obj map[string]any, idx int, kind, subtype string, issues *[]FieldIssue) Question {
	add := func(field, problem string) {
		*issues = append(*issues, FieldIssue{Index: idx, Field: field, Problem: problem})
	}

	q := Question{Kind: kind}
	if kind == TypeDescriptive {
		q.DescriptiveSubtype = subtype
	}

	q.Text = asString(obj, "question", add)
	if q.Text == "" {
		q.Text = asString(obj, "question_text", add)
	}

	switch kind {
	case TypeDescriptive:
		d := &Descriptive{
			Answer:    asString(obj, "answer", add),
			Marks:     asInt(obj, "marks", add),
			WordLimit: asInt(obj, "word_limit", add),
		}
		if lim, ok := Subtypes[subtype]; ok {
			if d.Marks == 0 {
				d.Marks = lim.Marks
			}
			if d.WordLimit == 0 {
				d.WordLimit = lim.WordLimit
			}
		}
		q.Descriptive = d
	default:
		m := &MCQ{
			Options:     asStrings(obj, "options", add),
			Explanation: asText(obj, "explanation", add),
		}
		if v, ok := obj["correct_answer"]; ok && v != nil {
			m.HasCorrectAnswer = true
			switch a := v.(type) {
			case string:
				m.CorrectAnswer = a
			case float64:
				m.CorrectAnswer = strconv.FormatFloat(a, 'f', -1, 64)
			default:
				m.HasCorrectAnswer = false
				add("correct_answer", fmt.Sprintf("expected a string, got %s", jsonKind(v)))
			}
		}
		q.MCQ = m
	}

	if v, ok := obj["metadata"]; ok && v != nil {
		md, ok := v.(map[string]any)
		if !ok {
			add("metadata", fmt.Sprintf("expected an object, got %s", jsonKind(v)))
		} else {
			q.HasMetadata = true
			q.Metadata = coerceMetadata(md, kind, subtype, add)
		}
	}
	return q
}

func coerceMetadata(md map[string]any, kind, subtype string, add func(field, problem string)) Metadata {
	m := Metadata{
		Topic:      asString(md, "topic", add),
		TopicID:    asText(md, "topic_id", add),
		Subtopic:   asString(md, "subtopic", add),
		Difficulty: asString(md, "difficulty", add),
	}
	if m.Difficulty == "" {
		m.Difficulty = asString(md, "difficult_level", add)
	}
	m.Difficulty = strings.ToUpper(strings.TrimSpace(m.Difficulty))

	if kind != TypeDescriptive {
		return m
	}
	kw := asStrings(md, "ai_answer_keywords", add)
	if len(kw) == 0 {
		kw = asStrings(md, "answer_keywords", add)
	}
	limit := MaxAnswerKeywords
	if lim, ok := Subtypes[subtype]; ok {
		limit = lim.MaxKeywords
	}
	if len(kw) > limit {
		kw = kw[:limit]
	}
	m.AnswerKeywords = kw
	return m
}

func asString(m map[string]any, key string, add func(field, problem string)) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		add(key, fmt.Sprintf("expected a string, got %s", jsonKind(v)))
		return ""
	}
	return s
}

// asText accepts a string, a number, or a list of strings joined by
// newlines.
func asText(m map[string]any, key string, add func(field, problem string)) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		add(key, fmt.Sprintf("expected text, got %s", jsonKind(v)))
		return ""
	}
}

func asInt(m map[string]any, key string, add func(field, problem string)) int {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			add(key, fmt.Sprintf("expected a number, got %q", t))
			return 0
		}
		return n
	default:
		add(key, fmt.Sprintf("expected a number, got %s", jsonKind(v)))
		return 0
	}
}

func asStrings(m map[string]any, key string, add func(field, problem string)) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		add(key, fmt.Sprintf("expected a list, got %s", jsonKind(v)))
		return nil
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case float64:
			out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
		default:
			add(fmt.Sprintf("%s[%d]", key, i), fmt.Sprintf("expected a string, got %s", jsonKind(item)))
		}
	}
	return out
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
