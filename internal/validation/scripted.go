package validation

import (
	"context"
	"sync"

	"github.com/abhisek/qforge/internal/questiongen"
)

// ScriptedRelevanceChecker is a deterministic RelevanceChecker for tests.
// It returns scripted results in FIFO order and repeats the last one once
// the script runs out. With no script it always passes.
type ScriptedRelevanceChecker struct {
	mu      sync.Mutex
	results []Result
	last    Result
	calls   int
}

// NewScriptedRelevanceChecker creates a checker with the given script.
func NewScriptedRelevanceChecker(results ...Result) *ScriptedRelevanceChecker {
	return &ScriptedRelevanceChecker{
		results: results,
		last:    Result{Checker: CheckerRelevance, Valid: true, Reason: "scripted"},
	}
}

func (s *ScriptedRelevanceChecker) Check(_ context.Context, _ []questiongen.Question, _ []string, _ string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) > 0 {
		s.last = s.results[0]
		s.results = s.results[1:]
	}
	r := s.last
	if r.Checker == "" {
		r.Checker = CheckerRelevance
	}
	return r
}

// CallCount returns the number of Check calls made.
func (s *ScriptedRelevanceChecker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
