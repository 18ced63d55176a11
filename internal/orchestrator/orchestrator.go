// Package orchestrator runs a generation request end to end: policy
// admission, content retrieval, the generate and validate retry loop,
// near-duplicate top-ups, persistence and metrics.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/content"
	"github.com/abhisek/qforge/internal/metrics"
	"github.com/abhisek/qforge/internal/policy"
	"github.com/abhisek/qforge/internal/questiongen"
	"github.com/abhisek/qforge/internal/store"
	"github.com/abhisek/qforge/internal/validation"
)

// DefaultMaxTopUpRounds bounds the extra rounds run to replace duplicates.
const DefaultMaxTopUpRounds = 2

// Deps are the collaborators of an Orchestrator. Policies and Generator
// are required; everything else is optional.
type Deps struct {
	Policies  *policy.Registry
	Retriever content.ContextSource
	Generator questiongen.Generator
	Validator *validation.Layer
	Sink      Sink
	Metrics   metrics.Recorder
	Hierarchy HierarchyChecker
	Dedup     *Deduplicator
	Log       *zap.Logger
	Now       func() time.Time
	NewID     func() string
}

// Options tune request handling.
type Options struct {
	// SerializeTopics makes concurrent requests for the same course,
	// subject and topic run one after another.
	SerializeTopics bool
	// MaxTopUpRounds caps duplicate replacement rounds. Zero uses
	// DefaultMaxTopUpRounds and a negative value disables top-ups.
	MaxTopUpRounds int
}

// Orchestrator handles generation requests. It is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	topUps int
	topics *keyedMutex
	log    *zap.Logger
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Policies == nil {
		return nil, errors.New("orchestrator: policy registry is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewLayer(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	topUps := opts.MaxTopUpRounds
	switch {
	case topUps == 0:
		topUps = DefaultMaxTopUpRounds
	case topUps < 0:
		topUps = 0
	}

	o := &Orchestrator{deps: deps, topUps: topUps, log: deps.Log}
	if opts.SerializeTopics {
		o.topics = newKeyedMutex()
	}
	return o, nil
}

// settings are the effective knobs of one request.
type settings struct {
	policy        *policy.Policy
	course        string
	attempts      int
	validate      bool
	useRelevance  bool
	useStructural bool
	save          bool
}

func (o *Orchestrator) settingsFor(req questiongen.Request, pol *policy.Policy) settings {
	s := settings{
		policy: pol,
		course: policy.NormalizeCode(req.Course),
		save:   req.SaveToStore == nil || *req.SaveToStore,
	}
	retries := pol.Validation.MaxRetries
	if req.MaxRetries != nil {
		retries = *req.MaxRetries
	}
	s.attempts = max(retries, 0) + 1

	s.validate = (req.UseValidation == nil || *req.UseValidation) && pol.Validation.Enabled()
	if s.validate {
		s.useRelevance = pol.Validation.UseReflection
		s.useStructural = pol.Validation.UseSelector
	}
	return s
}

// run is the mutable state of one request.
type run struct {
	o     *Orchestrator
	res   *Result
	state State
	round int
	log   *zap.Logger
}

func (r *run) to(next State, attempt int) {
	t := Transition{From: r.state, To: next, Round: r.round, Attempt: attempt, At: r.o.deps.Now()}
	r.res.Transitions = append(r.res.Transitions, t)
	r.log.Debug("state transition",
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Int("round", t.Round),
		zap.Int("attempt", t.Attempt))
	r.state = next
}

// Generate handles one request. It returns an error for invalid requests,
// policy violations and failures of the final allowed attempt. A request
// whose attempts all fail validation returns its last batch with status
// StatusExhausted and no error.
func (o *Orchestrator) Generate(ctx context.Context, req questiongen.Request) (*Result, error) {
	start := o.deps.Now()
	pol := o.deps.Policies.Resolve(req.Course)

	if strings.TrimSpace(req.QuestionType) == "" {
		req.QuestionType = pol.DefaultQuestionType(strings.TrimSpace(req.Subject))
	}
	if strings.TrimSpace(req.Difficulty) == "" {
		req.Difficulty = pol.DefaultDifficulty
	}
	req.Normalize()

	st := o.settingsFor(req, pol)
	res := &Result{
		Hierarchy: req.Hierarchy().WithDefaults(),
		Metadata: Metadata{
			RequestID:          o.deps.NewID(),
			Course:             st.course,
			Subject:            req.Subject,
			Topic:              req.Topic,
			Subtopic:           req.Subtopic,
			QuestionType:       req.QuestionType,
			DescriptiveSubtype: req.DescriptiveSubtype,
			NumQuestions:       req.NumQuestions,
			Difficulty:         req.Difficulty,
			EducationLevel:     pol.EducationLevel,
			MaxRetries:         st.attempts - 1,
			ValidationEnabled:  st.validate,
		},
	}
	log := o.log.With(
		zap.String("request_id", res.Metadata.RequestID),
		zap.String("course", st.course),
		zap.String("subject", req.Subject),
		zap.String("topic", req.Topic))
	r := &run{o: o, res: res, state: StateIdle, log: log}

	if err := req.Validate(); err != nil {
		log.Info("request rejected", zap.Error(err))
		return nil, err
	}
	if err := checkPolicy(pol, req); err != nil {
		log.Warn("request violates course policy", zap.Error(err))
		o.recordError(ctx, res, err, start)
		return nil, err
	}
	o.checkHierarchy(ctx, r, req, st)

	if o.topics != nil {
		key := st.course + "|" + strings.ToLower(req.Subject) + "|" + strings.ToLower(req.Topic)
		unlock, err := o.topics.Lock(ctx, key)
		if err != nil {
			o.recordError(ctx, res, err, start)
			return nil, err
		}
		defer unlock()
	}

	r.to(StateRetrieving, 0)
	retrieved := o.retrieve(ctx, req, pol)
	res.Metadata.ContentChars = len([]rune(retrieved))

	if err := o.collect(ctx, r, req, st, retrieved); err != nil {
		log.Error("generation failed", zap.Error(err), zap.Int("attempts", res.Metadata.Attempts))
		o.recordError(ctx, res, err, start)
		return nil, err
	}

	questiongen.Stamp(res.Questions, res.Hierarchy)
	if st.save && len(res.Questions) > 0 && o.deps.Sink != nil {
		o.persist(ctx, r, req, pol)
	}

	res.Metadata.GenerationTimeSeconds = elapsed(start, o.deps.Now())
	o.recordOutcome(ctx, res)
	log.Info("generation finished",
		zap.String("status", string(res.Status)),
		zap.Int("questions", len(res.Questions)),
		zap.Int("attempts", res.Metadata.Attempts),
		zap.Float64("seconds", res.Metadata.GenerationTimeSeconds))
	return res, nil
}

func checkPolicy(pol *policy.Policy, req questiongen.Request) error {
	if !pol.IsSubjectAllowed(req.Subject) {
		return &PolicyViolationError{
			Course:  pol.Code,
			Subject: req.Subject,
			Allowed: pol.AvailableSubjects(),
			Reason:  fmt.Sprintf("subject %q is not offered", req.Subject),
		}
	}
	if !pol.IsQuestionTypeAllowed(req.Subject, req.QuestionType) {
		return &PolicyViolationError{
			Course:       pol.Code,
			Subject:      req.Subject,
			QuestionType: req.QuestionType,
			Allowed:      pol.AllowedQuestionTypes(req.Subject),
			Reason:       fmt.Sprintf("question type %q is not allowed for %s", req.QuestionType, req.Subject),
		}
	}
	return nil
}

func (o *Orchestrator) checkHierarchy(ctx context.Context, r *run, req questiongen.Request, st settings) {
	if o.deps.Hierarchy == nil {
		return
	}
	v, err := o.deps.Hierarchy.CheckHierarchy(ctx, st.course, req.Subject, req.Topic, req.Subtopic)
	if err != nil {
		r.log.Debug("hierarchy check unavailable, assuming valid", zap.Error(err))
		return
	}
	if v.Valid {
		return
	}
	r.res.Warnings = append(r.res.Warnings, v.Reason)
	if st.policy.Validation.StrictTopicMatching {
		r.log.Warn("topic not in course hierarchy", zap.String("reason", v.Reason))
	} else {
		r.log.Debug("topic not in course hierarchy", zap.String("reason", v.Reason))
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, req questiongen.Request, pol *policy.Policy) string {
	if o.deps.Retriever == nil {
		return ""
	}
	return o.deps.Retriever.Retrieve(ctx, content.Query{
		Subject:   req.Subject,
		Topic:     req.Topic,
		Subtopic:  req.Subtopic,
		Hierarchy: req.Hierarchy(),
		MaxChunks: pol.Retrieval.MaxChunks,
	})
}

// collect runs the primary round and, when duplicates were dropped, top-up
// rounds for the missing count.
func (o *Orchestrator) collect(ctx context.Context, r *run, req questiongen.Request, st settings, retrieved string) error {
	res := r.res
	first, err := o.runRound(ctx, r, req, st, retrieved)
	if err != nil {
		return err
	}
	res.Validation = first.report
	res.Questions = first.questions
	if first.exhausted {
		res.Status = StatusExhausted
		return nil
	}
	res.Status = StatusAccepted
	if o.deps.Dedup == nil {
		return nil
	}

	session := o.deps.Dedup.session(ctx, dedupScope{
		Course:       st.course,
		Subject:      req.Subject,
		Topic:        req.Topic,
		QuestionType: req.QuestionType,
	})
	collected, dropped := session.filter(ctx, first.questions)
	res.Metadata.DuplicatesRemoved = dropped
	remaining := req.NumQuestions - len(collected)

	for round := 1; remaining > 0 && dropped > 0 && round <= o.topUps; round++ {
		r.round = round
		res.Metadata.TopUpRounds = round
		r.log.Info("topping up after duplicates", zap.Int("round", round), zap.Int("remaining", remaining))

		topUp := req
		topUp.NumQuestions = remaining
		rr, err := o.runRound(ctx, r, topUp, st, retrieved)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("top-up round %d failed: %v", round, err))
			r.log.Warn("top-up round failed, keeping collected questions", zap.Int("round", round), zap.Error(err))
			break
		}
		if rr.exhausted {
			res.Warnings = append(res.Warnings, fmt.Sprintf("top-up round %d did not pass validation", round))
			r.log.Warn("top-up round exhausted, keeping collected questions", zap.Int("round", round))
			break
		}

		var kept []questiongen.Question
		kept, dropped = session.filter(ctx, rr.questions)
		res.Metadata.DuplicatesRemoved += dropped
		kept = kept[:min(len(kept), remaining)]
		collected = append(collected, kept...)
		remaining -= len(kept)
	}
	if remaining > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d question(s) short after removing duplicates", remaining))
	}
	res.Questions = collected
	return nil
}

type roundResult struct {
	questions []questiongen.Question
	report    *validation.Report
	exhausted bool
}

// runRound runs the generate and validate loop for one batch.
func (o *Orchestrator) runRound(ctx context.Context, r *run, req questiongen.Request, st settings, retrieved string) (roundResult, error) {
	res := r.res
	exp := validation.Expectation{
		Topics:        []string{req.Topic},
		Subject:       req.Subject,
		Count:         req.NumQuestions,
		UseRelevance:  st.useRelevance,
		UseStructural: st.useStructural,
	}

	for attempt := 1; attempt <= st.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return roundResult{}, err
		}
		res.Metadata.Attempts++
		r.to(StateGenerating, attempt)
		began := o.deps.Now()
		rec := AttemptRecord{Round: r.round, Number: attempt}

		qs, err := o.deps.Generator.Generate(ctx, req, retrieved, st.policy)
		if err != nil {
			rec.Outcome = OutcomeError
			rec.Error = err.Error()
			rec.ErrorKind = ErrorKind(err)
			rec.Duration = o.deps.Now().Sub(began)
			res.Attempts = append(res.Attempts, rec)
			r.log.Warn("generation attempt failed",
				zap.Int("round", r.round), zap.Int("attempt", attempt), zap.Error(err))
			if attempt == st.attempts || ctx.Err() != nil {
				return roundResult{}, &AttemptsExhaustedError{Attempts: attempt, Last: err}
			}
			r.to(StateRetrying, attempt)
			continue
		}
		rec.Generated = len(qs)

		if !st.validate {
			rec.Outcome = OutcomeAccepted
			rec.Duration = o.deps.Now().Sub(began)
			res.Attempts = append(res.Attempts, rec)
			r.to(StateAccepted, attempt)
			return roundResult{questions: qs}, nil
		}

		r.to(StateValidating, attempt)
		rep := o.deps.Validator.Validate(ctx, qs, exp)
		rec.Duration = o.deps.Now().Sub(began)
		if rep.Passed() {
			rec.Outcome = OutcomeAccepted
			res.Attempts = append(res.Attempts, rec)
			r.to(StateAccepted, attempt)
			return roundResult{questions: qs, report: &rep}, nil
		}

		rec.Outcome = OutcomeValidationFailed
		rec.Reasons = rep.FailureReasons()
		res.Attempts = append(res.Attempts, rec)
		r.log.Info("validation failed",
			zap.Int("round", r.round), zap.Int("attempt", attempt), zap.Strings("reasons", rec.Reasons))

		if attempt == st.attempts {
			r.to(StateExhausted, attempt)
			return roundResult{questions: qs, report: &rep, exhausted: true}, nil
		}
		r.to(StateRetrying, attempt)
	}
	// st.attempts is at least one, so the loop always returns.
	return roundResult{}, errors.New("orchestrator: no attempts run")
}

func (o *Orchestrator) persist(ctx context.Context, r *run, req questiongen.Request, pol *policy.Policy) {
	res := r.res
	h := res.Hierarchy
	meta := store.QuestionMeta{
		RequestID:      res.Metadata.RequestID,
		Course:         res.Metadata.Course,
		University:     h.University,
		Department:     h.Department,
		Semester:       h.Semester,
		PaperType:      h.PaperType,
		EducationLevel: pol.EducationLevel,
		SourceType:     "generated",
		Subject:        req.Subject,
		Topic:          req.Topic,
		Subtopic:       req.Subtopic,
	}
	for i, q := range res.Questions {
		if err := o.deps.Sink.Store(ctx, q, meta); err != nil {
			r.log.Warn("storing question failed, skipping", zap.Int("index", i), zap.Error(err))
			continue
		}
		res.Metadata.SavedCount++
	}
	res.Metadata.SavedToStore = res.Metadata.SavedCount > 0
	r.log.Debug("questions stored", zap.Int("saved", res.Metadata.SavedCount), zap.Int("total", len(res.Questions)))
}

func (o *Orchestrator) recordOutcome(ctx context.Context, res *Result) {
	m := res.Metadata
	now := o.deps.Now()
	passed := res.Validation == nil || res.Validation.Passed()

	if res.Status == StatusExhausted {
		o.deps.Metrics.RecordValidationFailure(ctx, metrics.ValidationFailure{
			At:                 now,
			RequestID:          m.RequestID,
			Course:             m.Course,
			Subject:            m.Subject,
			Topic:              m.Topic,
			QuestionType:       m.QuestionType,
			Reasons:            res.FailureReasons(),
			QuestionsAttempted: len(res.Questions),
			Attempts:           m.Attempts,
			Duration:           m.GenerationTimeSeconds,
		})
	}
	o.deps.Metrics.RecordSuccess(ctx, metrics.Success{
		At:               now,
		RequestID:        m.RequestID,
		Course:           m.Course,
		Subject:          m.Subject,
		Topic:            m.Topic,
		QuestionType:     m.QuestionType,
		NumQuestions:     len(res.Questions),
		ValidationPassed: passed,
		Attempts:         m.Attempts,
		Duration:         m.GenerationTimeSeconds,
	})
}

func (o *Orchestrator) recordError(ctx context.Context, res *Result, err error, start time.Time) {
	m := res.Metadata
	o.deps.Metrics.RecordError(ctx, metrics.Failure{
		At:           o.deps.Now(),
		RequestID:    m.RequestID,
		Course:       m.Course,
		Subject:      m.Subject,
		Topic:        m.Topic,
		QuestionType: m.QuestionType,
		NumQuestions: m.NumQuestions,
		ErrorType:    ErrorKind(err),
		Message:      err.Error(),
		Attempts:     m.Attempts,
		Duration:     elapsed(start, o.deps.Now()),
	})
}

func elapsed(start, end time.Time) float64 {
	return math.Round(end.Sub(start).Seconds()*100) / 100
}
