// Package policy resolves a course code to its generation policy: which
// subjects and question types are allowed, how questions are styled, how
// strictly they are validated, and how much content is retrieved.
package policy

import "slices"

// DefaultCode is the policy used for unknown or empty course codes.
const DefaultCode = "default"

// Question types.
const (
	TypeMCQ         = "mcq"
	TypeDescriptive = "descriptive"
)

var allQuestionTypes = []string{TypeMCQ, TypeDescriptive}

// Policy is the static configuration for one course.
type Policy struct {
	Code              string              `yaml:"code"`
	DisplayName       string              `yaml:"display_name"`
	EducationLevel    string              `yaml:"education_level"`
	DefaultDifficulty string              `yaml:"default_difficulty"`
	Subjects          []Subject           `yaml:"subjects"`
	Prompts           PromptCustomization `yaml:"prompts"`
	Validation        ValidationSettings  `yaml:"validation"`
	Retrieval         RetrievalSettings   `yaml:"retrieval"`
}

// Subject lists the topics and question types available for one subject.
type Subject struct {
	Name                 string         `yaml:"name"`
	Topics               []string       `yaml:"topics"`
	AllowedQuestionTypes []string       `yaml:"allowed_question_types"`
	DefaultQuestionType  string         `yaml:"default_question_type"`
	MarksDistribution    map[string]int `yaml:"marks_distribution"`
}

// PromptCustomization is free text injected into generation prompts.
type PromptCustomization struct {
	FocusInstruction string `yaml:"focus_instruction"`
	ExplanationStyle string `yaml:"explanation_style"`
	QuestionStyle    string `yaml:"question_style"`
}

// ValidationSettings control the validation loop. UseReflection enables the
// topic-relevance checker and UseSelector the structural checker.
type ValidationSettings struct {
	UseReflection       bool `yaml:"use_reflection"`
	UseSelector         bool `yaml:"use_selector"`
	MaxRetries          int  `yaml:"max_retries"`
	StrictTopicMatching bool `yaml:"strict_topic_matching"`
}

// RetrievalSettings tune content retrieval for the course.
type RetrievalSettings struct {
	MaxChunks           int     `yaml:"max_chunks"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// MinSimilarity returns the cosine cutoff for content search, or fallback
// when the policy leaves it unset.
func (r RetrievalSettings) MinSimilarity(fallback float64) float64 {
	if r.SimilarityThreshold > 0 {
		return r.SimilarityThreshold
	}
	return fallback
}

// Enabled reports whether any validator is configured.
func (v ValidationSettings) Enabled() bool {
	return v.UseReflection || v.UseSelector
}

// Subject returns the named subject record.
func (p *Policy) Subject(name string) (*Subject, bool) {
	for i := range p.Subjects {
		if p.Subjects[i].Name == name {
			return &p.Subjects[i], true
		}
	}
	return nil, false
}

// IsSubjectAllowed reports whether subject may be requested. A policy
// without a subject list allows everything.
func (p *Policy) IsSubjectAllowed(subject string) bool {
	if len(p.Subjects) == 0 {
		return true
	}
	_, ok := p.Subject(subject)
	return ok
}

// IsQuestionTypeAllowed reports whether qt may be generated for subject.
// Only an explicit, non-empty allow list restricts.
func (p *Policy) IsQuestionTypeAllowed(subject, qt string) bool {
	s, ok := p.Subject(subject)
	if !ok || len(s.AllowedQuestionTypes) == 0 {
		return true
	}
	return slices.Contains(s.AllowedQuestionTypes, qt)
}

// AllowedQuestionTypes returns the configured types for subject, or both
// types when nothing is configured.
func (p *Policy) AllowedQuestionTypes(subject string) []string {
	if s, ok := p.Subject(subject); ok && len(s.AllowedQuestionTypes) > 0 {
		return slices.Clone(s.AllowedQuestionTypes)
	}
	return slices.Clone(allQuestionTypes)
}

// DefaultQuestionType returns the recommended type for subject.
func (p *Policy) DefaultQuestionType(subject string) string {
	if s, ok := p.Subject(subject); ok && s.DefaultQuestionType != "" {
		return s.DefaultQuestionType
	}
	return TypeMCQ
}

// AvailableSubjects returns subject names in configured order.
func (p *Policy) AvailableSubjects() []string {
	names := make([]string, len(p.Subjects))
	for i, s := range p.Subjects {
		names[i] = s.Name
	}
	return names
}

// Topics returns the configured topics of subject, or nil.
func (p *Policy) Topics(subject string) []string {
	if s, ok := p.Subject(subject); ok {
		return s.Topics
	}
	return nil
}

// builtinDefault is used when no loaded file defines the default policy.
func builtinDefault() *Policy {
	return &Policy{
		Code:              DefaultCode,
		DisplayName:       "General",
		EducationLevel:    "undergraduate",
		DefaultDifficulty: "MEDIUM",
		Validation: ValidationSettings{
			UseReflection: true,
			UseSelector:   true,
			MaxRetries:    2,
		},
		Retrieval: RetrievalSettings{
			MaxChunks:           20,
			SimilarityThreshold: 0.6,
		},
	}
}
