package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"time"
)

const recentErrors = 5

// Aggregator keeps every outcome in memory, bucketed by course. A single
// mutex guards all buckets.
type Aggregator struct {
	mu      sync.Mutex
	courses map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	successes  []Success
	errors     []Failure
	validation []ValidationFailure
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{courses: make(map[string]*bucket), now: time.Now}
}

func (a *Aggregator) bucketFor(course string) *bucket {
	if course == "" {
		course = "default"
	}
	b, ok := a.courses[course]
	if !ok {
		b = &bucket{}
		a.courses[course] = b
	}
	return b
}

func (a *Aggregator) RecordSuccess(_ context.Context, s Success) {
	if s.At.IsZero() {
		s.At = a.now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bucketFor(s.Course)
	b.successes = append(b.successes, s)
}

func (a *Aggregator) RecordError(_ context.Context, f Failure) {
	if f.At.IsZero() {
		f.At = a.now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bucketFor(f.Course)
	b.errors = append(b.errors, f)
}

func (a *Aggregator) RecordValidationFailure(_ context.Context, v ValidationFailure) {
	if v.At.IsZero() {
		v.At = a.now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bucketFor(v.Course)
	b.validation = append(b.validation, v)
}

// Summary is the per-course roll-up.
type Summary struct {
	Course             string    `json:"course"`
	TotalRequests      int       `json:"total_requests"`
	Successes          int       `json:"successes"`
	Errors             int       `json:"errors"`
	ValidationFailures int       `json:"validation_failures"`
	SuccessRate        float64   `json:"success_rate"`
	AverageTime        float64   `json:"average_generation_time"`
	RecentErrors       []Failure `json:"recent_errors"`
}

// CourseSummary rolls up one course. Success rate is a percentage of
// successes over successes plus errors; validation failures are counted
// separately because the same request also records a success.
func (a *Aggregator) CourseSummary(course string) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Course: course, RecentErrors: []Failure{}}
	b, ok := a.courses[course]
	if !ok {
		return s
	}
	s.Successes = len(b.successes)
	s.Errors = len(b.errors)
	s.ValidationFailures = len(b.validation)
	s.TotalRequests = s.Successes + s.Errors
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.TotalRequests) * 100
	}
	if len(b.successes) > 0 {
		var total float64
		for _, x := range b.successes {
			total += x.Duration
		}
		s.AverageTime = math.Round(total/float64(len(b.successes))*100) / 100
	}
	s.RecentErrors = tail(b.errors, recentErrors)
	return s
}

// ErrorReport breaks down one course's errors.
type ErrorReport struct {
	Course       string         `json:"course"`
	TotalErrors  int            `json:"total_errors"`
	ErrorsByType map[string]int `json:"errors_by_type"`
	RecentErrors []Failure      `json:"recent_errors"`
}

// ErrorReport counts errors by type and returns the latest limit errors.
func (a *Aggregator) ErrorReport(course string, limit int) ErrorReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := ErrorReport{Course: course, ErrorsByType: map[string]int{}, RecentErrors: []Failure{}}
	b, ok := a.courses[course]
	if !ok {
		return r
	}
	r.TotalErrors = len(b.errors)
	for _, e := range b.errors {
		r.ErrorsByType[e.ErrorType]++
	}
	if limit <= 0 {
		limit = 10
	}
	r.RecentErrors = tail(b.errors, limit)
	return r
}

// Courses returns every course seen, sorted.
func (a *Aggregator) Courses() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.courses))
	for c := range a.courses {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Export is the JSON document written by Export.
type Export struct {
	ExportedAt time.Time          `json:"exported_at"`
	Courses    map[string]Summary `json:"courses"`
}

// Export writes every course summary to w as indented JSON.
func (a *Aggregator) Export(w io.Writer) error {
	doc := Export{ExportedAt: a.now(), Courses: make(map[string]Summary)}
	for _, c := range a.Courses() {
		doc.Courses[c] = a.CourseSummary(c)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	return nil
}

// ExportFile writes the export to path.
func (a *Aggregator) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics export: %w", err)
	}
	if err := a.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func tail[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return append([]T{}, s...)
}
