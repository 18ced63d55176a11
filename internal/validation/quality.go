package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abhisek/qforge/internal/questiongen"
)

// Quality issue types.
const (
	IssueShortQuestion       = "short_question"
	IssueInsufficientOptions = "insufficient_options"
	IssueEmptyOption         = "empty_option"
	IssueShortAnswer         = "short_answer"
	IssueMissingMetadata     = "missing_metadata"
)

const (
	minQuestionChars = 10
	minAnswerChars   = 20
)

// QualityIssue is one advisory finding. Index is 1-based.
type QualityIssue struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// QualityReport scores a batch from 0 to 100. It never gates acceptance.
type QualityReport struct {
	Score       int            `json:"quality_score"`
	HighQuality bool           `json:"is_high_quality"`
	Issues      []QualityIssue `json:"issues,omitempty"`
}

// QualityScorer flags short texts, empty options and missing metadata.
type QualityScorer struct{}

// Score rates qs, deducting 10 points per issue.
func (QualityScorer) Score(qs []questiongen.Question) QualityReport {
	var issues []QualityIssue
	add := func(idx int, typ, msg string) {
		issues = append(issues, QualityIssue{Index: idx, Type: typ, Message: msg})
	}

	for i, q := range qs {
		n := i + 1
		if utf8.RuneCountInString(strings.TrimSpace(q.Text)) < minQuestionChars {
			add(n, IssueShortQuestion, "Question text is too short")
		}
		if q.MCQ != nil {
			if len(q.MCQ.Options) < 2 {
				add(n, IssueInsufficientOptions, fmt.Sprintf("Only %d option(s) provided", len(q.MCQ.Options)))
			}
			for oi, opt := range q.MCQ.Options {
				if strings.TrimSpace(opt) == "" {
					add(n, IssueEmptyOption, fmt.Sprintf("Option %d is empty", oi+1))
				}
			}
		}
		if q.Descriptive != nil && utf8.RuneCountInString(strings.TrimSpace(q.Descriptive.Answer)) < minAnswerChars {
			add(n, IssueShortAnswer, "Answer is too short")
		}
		if !q.HasMetadata || q.Metadata.Topic == "" {
			add(n, IssueMissingMetadata, "Missing metadata field: topic")
		}
		if !q.HasMetadata || q.Metadata.Difficulty == "" {
			add(n, IssueMissingMetadata, "Missing metadata field: difficulty")
		}
	}

	return QualityReport{
		Score:       max(0, 100-10*len(issues)),
		HighQuality: len(issues) == 0,
		Issues:      issues,
	}
}
