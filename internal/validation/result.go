// Package validation checks generated question batches for topic relevance,
// structural completeness and basic quality.
package validation

// Result is the outcome of one checker over one batch.
type Result struct {
	Checker string `json:"checker"`
	Valid   bool   `json:"is_valid"`
	// Skipped is set when the checker was disabled; Valid is then true.
	Skipped bool `json:"skipped,omitempty"`
	// MismatchedIndices are 0-based question positions for the relevance
	// checker and 1-based duplicate positions for the structural checker.
	MismatchedIndices []int     `json:"mismatched_indices,omitempty"`
	Issues            []string  `json:"issues,omitempty"`
	Suggestions       []string  `json:"suggestions,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Details           []Verdict `json:"details,omitempty"`
	Error             string    `json:"error,omitempty"`

	ActualCount   int `json:"actual_count,omitempty"`
	ExpectedCount int `json:"expected_count,omitempty"`
}

// Verdict is the grader's judgement of one question.
type Verdict struct {
	QuestionIndex int    `json:"question_index"`
	IsRelevant    bool   `json:"is_relevant"`
	ActualTopic   string `json:"actual_topic,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Suggestion    string `json:"suggestion,omitempty"`
}

func skipped(checker string) Result {
	return Result{Checker: checker, Valid: true, Skipped: true, Reason: "check disabled"}
}
