package validation

import (
	"context"

	"github.com/abhisek/qforge/internal/questiongen"
)

// Expectation is what a batch is validated against.
type Expectation struct {
	Topics        []string
	Subject       string
	Count         int
	UseRelevance  bool
	UseStructural bool
}

// Report holds every checker's result for one batch.
type Report struct {
	Relevance  Result        `json:"relevance"`
	Structural Result        `json:"structural"`
	Quality    QualityReport `json:"quality"`
}

// Passed reports whether both gating checks passed. Quality is advisory.
func (r Report) Passed() bool {
	return r.Relevance.Valid && r.Structural.Valid
}

// FailureReasons lists why the batch failed, relevance first.
func (r Report) FailureReasons() []string {
	var out []string
	if !r.Relevance.Valid {
		out = append(out, r.Relevance.Issues...)
		out = append(out, r.Relevance.Suggestions...)
		if len(r.Relevance.Issues) == 0 && len(r.Relevance.Suggestions) == 0 && r.Relevance.Reason != "" {
			out = append(out, r.Relevance.Reason)
		}
	}
	if !r.Structural.Valid {
		out = append(out, r.Structural.Issues...)
	}
	return out
}

// Layer runs the relevance, structural and quality checks.
type Layer struct {
	Relevance  RelevanceChecker
	Structural StructuralChecker
	Quality    QualityScorer
}

// NewLayer creates a layer around a relevance checker.
func NewLayer(relevance RelevanceChecker) *Layer {
	return &Layer{Relevance: relevance}
}

// Validate checks qs. Disabled or missing checkers are reported as skipped.
func (l *Layer) Validate(ctx context.Context, qs []questiongen.Question, exp Expectation) Report {
	rep := Report{
		Relevance:  skipped(CheckerRelevance),
		Structural: skipped(CheckerStructural),
		Quality:    l.Quality.Score(qs),
	}
	if exp.UseRelevance && l.Relevance != nil {
		rep.Relevance = l.Relevance.Check(ctx, qs, exp.Topics, exp.Subject)
	}
	if exp.UseStructural {
		rep.Structural = l.Structural.Check(qs, exp.Count)
	}
	return rep
}
