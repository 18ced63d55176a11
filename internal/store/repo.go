package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// LLMRequestEventData captures a single backend call.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	CostUSD      float64
	RequestBody  string
	ResponseBody string
}

// LLMRequestEventRecord is a persisted LLM call.
type LLMRequestEventRecord struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsageStats aggregates calls per purpose.
type LLMUsageStats struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// LLMModelUsage aggregates calls per model.
type LLMModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Generation outcomes.
const (
	OutcomeSuccess           = "success"
	OutcomeError             = "error"
	OutcomeValidationFailure = "validation_failure"
)

// GenerationEventData records the outcome of one generation request.
type GenerationEventData struct {
	Timestamp         time.Time // zero means now
	RequestID         string
	Course            string
	Subject           string
	Topic             string
	Outcome           string
	QuestionType      string
	NumQuestions      int
	GeneratedCount    int
	ValidationPassed  bool
	ErrorType         string
	ErrorMessage      string
	RetryCount        int
	GenerationSeconds float64
	Reasons           []string
}

// GenerationEventRecord is a persisted generation outcome.
type GenerationEventRecord struct {
	ID       int
	Sequence int64
	GenerationEventData
}

// GenerationQuery filters generation events.
type GenerationQuery struct {
	QueryOpts
	Course  string
	Outcome string
}

// LLMEventAppender is the write side used by the provider logging decorator.
type LLMEventAppender interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
}

// EventRepo provides append and query access to events.
type EventRepo interface {
	LLMEventAppender

	// QueryLLMEvents returns LLM events, newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEventRecord, error)

	// GetLLMEvent returns one event by ID, or nil when absent.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEventRecord, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsageStats, error)
	LLMUsageByModel(ctx context.Context) ([]LLMModelUsage, error)

	AppendGenerationEvent(ctx context.Context, data GenerationEventData) error

	// QueryGenerationEvents returns generation events, newest first.
	QueryGenerationEvents(ctx context.Context, q GenerationQuery) ([]GenerationEventRecord, error)
}

// QuestionMeta carries the academic scope of a stored question.
type QuestionMeta struct {
	RequestID      string
	Course         string
	University     string
	Department     string
	Semester       int
	PaperType      string
	EducationLevel string
	SourceType     string
	Subject        string
	Topic          string
	Subtopic       string
}

// Review statuses of a stored question.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrQuestionNotFound is returned by SetStatus for an unknown ID.
var ErrQuestionNotFound = errors.New("question not found")

// StoredQuestion is a question as persisted. Body holds the full question
// JSON so every variant round-trips without a column per field.
type StoredQuestion struct {
	ID                 string
	Meta               QuestionMeta
	QuestionType       string
	DescriptiveSubtype string
	Difficulty         string
	Text               string
	Status             string
	Body               json.RawMessage
	CreatedAt          time.Time
}

// QuestionFilter narrows question listings. Empty fields match everything.
type QuestionFilter struct {
	Course       string
	Subject      string
	Topic        string
	QuestionType string
	Status       string
	Limit        int
}

// QuestionRepo persists generated questions.
type QuestionRepo interface {
	// Save stores q and returns its ID. An empty q.ID gets a fresh UUID.
	Save(ctx context.Context, q StoredQuestion) (string, error)

	// List returns matching questions, newest first.
	List(ctx context.Context, f QuestionFilter) ([]StoredQuestion, error)

	Count(ctx context.Context, f QuestionFilter) (int, error)

	// SetStatus records a review decision.
	SetStatus(ctx context.Context, id, status string) error
}

// ValidStatus reports whether s is a known review status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}
