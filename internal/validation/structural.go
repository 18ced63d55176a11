package validation

import (
	"fmt"
	"strings"

	"github.com/abhisek/qforge/internal/questiongen"
)

// CheckerStructural names the structural checker in results.
const CheckerStructural = "structural"

// StructuralChecker checks count, duplicates and field completeness. It
// makes no external calls.
//
// CorrectAnswer is only checked for presence; it is not compared with the
// options.
type StructuralChecker struct{}

// Check validates qs against the expected count. A count mismatch alone
// fails the batch.
func (StructuralChecker) Check(qs []questiongen.Question, expected int) Result {
	res := Result{Checker: CheckerStructural, ActualCount: len(qs), ExpectedCount: expected}
	if len(qs) == 0 {
		res.Reason = "No questions were generated"
		res.Issues = []string{"No questions in response"}
		return res
	}

	if diff := len(qs) - expected; diff > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("Generated %d extra question(s)", diff))
	} else if diff < 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("Missing %d question(s)", -diff))
	}

	for i, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			res.Issues = append(res.Issues, fmt.Sprintf("Question %d has empty question text", i+1))
		}
	}
	dups := DuplicateIndices(qs)
	for _, d := range dups {
		res.Issues = append(res.Issues, fmt.Sprintf("Question %d is a duplicate", d))
	}
	res.MismatchedIndices = dups

	for i, q := range qs {
		n := i + 1
		switch {
		case q.MCQ != nil:
			if len(q.MCQ.Options) < 2 {
				res.Issues = append(res.Issues, fmt.Sprintf("Question %d has insufficient options", n))
			}
			if !q.MCQ.HasCorrectAnswer {
				res.Issues = append(res.Issues, fmt.Sprintf("Question %d missing correct_answer", n))
			}
		case q.Descriptive != nil:
			if strings.TrimSpace(q.Descriptive.Answer) == "" {
				res.Issues = append(res.Issues, fmt.Sprintf("Question %d has empty answer", n))
			}
		}
		if !q.HasMetadata {
			res.Issues = append(res.Issues, fmt.Sprintf("Question %d missing metadata", n))
		}
	}

	res.Valid = len(qs) == expected && len(res.Issues) == 0
	if res.Valid {
		res.Reason = fmt.Sprintf("Validation passed: %d valid questions generated", len(qs))
	} else {
		res.Reason = fmt.Sprintf("Validation failed: %d issue(s) found", len(res.Issues))
	}
	return res
}

// DuplicateIndices returns the 1-based positions of questions whose text
// repeats an earlier one, ignoring case and surrounding whitespace. Empty
// texts are never duplicates.
func DuplicateIndices(qs []questiongen.Question) []int {
	seen := make(map[string]bool, len(qs))
	var dups []int
	for i, q := range qs {
		key := strings.ToLower(strings.TrimSpace(q.Text))
		if key == "" {
			continue
		}
		if seen[key] {
			dups = append(dups, i+1)
			continue
		}
		seen[key] = true
	}
	return dups
}
