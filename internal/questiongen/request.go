package questiongen

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/abhisek/qforge/internal/content"
)

// Question types.
const (
	TypeMCQ         = "mcq"
	TypeDescriptive = "descriptive"
)

// Descriptive subtypes.
const (
	SubtypeVeryShort = "very_short"
	SubtypeShort     = "short"
	SubtypeLongEssay = "long_essay"
)

// SubtypeLimits holds the marking scheme of a descriptive subtype.
type SubtypeLimits struct {
	Marks       int
	WordLimit   int
	MaxKeywords int
}

// Subtypes maps each descriptive subtype to its marking scheme.
var Subtypes = map[string]SubtypeLimits{
	SubtypeVeryShort: {Marks: 2, WordLimit: 50, MaxKeywords: 5},
	SubtypeShort:     {Marks: 5, WordLimit: 150, MaxKeywords: 7},
	SubtypeLongEssay: {Marks: 15, WordLimit: 500, MaxKeywords: 10},
}

// MaxAnswerKeywords caps answer keywords for any descriptive question.
const MaxAnswerKeywords = 10

// Request is one generation invocation.
type Request struct {
	Subject            string `json:"subject" validate:"required,max=200"`
	Topic              string `json:"topic" validate:"required,max=200"`
	Subtopic           string `json:"subtopic,omitempty" validate:"max=200"`
	NumQuestions       int    `json:"num_questions" validate:"min=1,max=50"`
	QuestionType       string `json:"question_type" validate:"oneof=mcq descriptive"`
	DescriptiveSubtype string `json:"descriptive_type,omitempty" validate:"omitempty,oneof=very_short short long_essay"`
	Difficulty         string `json:"difficulty" validate:"oneof=EASY MEDIUM HARD"`

	University string `json:"university,omitempty" validate:"max=200"`
	Course     string `json:"course,omitempty" validate:"max=100"`
	Department string `json:"department,omitempty" validate:"max=200"`
	Semester   int    `json:"semester,omitempty" validate:"min=0,max=12"`
	PaperType  string `json:"paper_type,omitempty" validate:"max=100"`

	// Nil pointers defer to the course policy.
	UseValidation *bool `json:"use_validation,omitempty"`
	MaxRetries    *int  `json:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
	SaveToStore   *bool `json:"save_to_store,omitempty"`

	UserPrompt string `json:"user_prompt,omitempty" validate:"max=2000"`
}

// Hierarchy returns the request's institutional scope.
func (r Request) Hierarchy() content.Hierarchy {
	return content.Hierarchy{
		University: r.University,
		Course:     r.Course,
		Department: r.Department,
		Semester:   r.Semester,
		PaperType:  r.PaperType,
	}
}

// Normalize trims fields and fills defaults for anything left empty.
func (r *Request) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Topic = strings.TrimSpace(r.Topic)
	r.Subtopic = strings.TrimSpace(r.Subtopic)
	r.UserPrompt = strings.TrimSpace(r.UserPrompt)
	r.University = strings.TrimSpace(r.University)
	r.Course = strings.TrimSpace(r.Course)
	r.Department = strings.TrimSpace(r.Department)
	r.PaperType = strings.TrimSpace(r.PaperType)

	r.QuestionType = strings.ToLower(strings.TrimSpace(r.QuestionType))
	if r.QuestionType == "" {
		r.QuestionType = TypeMCQ
	}
	r.DescriptiveSubtype = strings.ToLower(strings.TrimSpace(r.DescriptiveSubtype))
	r.Difficulty = strings.ToUpper(strings.TrimSpace(r.Difficulty))
	if r.Difficulty == "" {
		r.Difficulty = "MEDIUM"
	}
}

// ErrInvalidRequest is matched by every *RequestError.
var ErrInvalidRequest = errors.New("invalid generation request")

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// RequestError lists every field that failed admission.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return fmt.Sprintf("invalid generation request: %s", strings.Join(msgs, "; "))
}

func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(subtypeRule, Request{})
	})
	return validate
}

// subtypeRule requires a descriptive subtype exactly when the question
// type is descriptive.
func subtypeRule(sl validator.StructLevel) {
	r := sl.Current().Interface().(Request)
	switch {
	case r.QuestionType == TypeDescriptive && r.DescriptiveSubtype == "":
		sl.ReportError(r.DescriptiveSubtype, "DescriptiveSubtype", "DescriptiveSubtype", "required_for_descriptive", "")
	case r.QuestionType != TypeDescriptive && r.DescriptiveSubtype != "":
		sl.ReportError(r.DescriptiveSubtype, "DescriptiveSubtype", "DescriptiveSubtype", "descriptive_only", "")
	}
}

// Validate checks the request. It returns a *RequestError or nil.
func (r Request) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{Fields: []FieldError{{Message: err.Error()}}}
	}
	out := &RequestError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_for_descriptive":
		return "descriptive questions need a descriptive_type (very_short, short or long_essay)"
	case "descriptive_only":
		return "descriptive_type is only valid for descriptive questions"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
