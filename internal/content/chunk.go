// Package content stores source text chunks with their academic scope and
// assembles them into bounded prompt context.
package content

import (
	"regexp"
	"strings"
	"time"
)

// Chunk types.
const (
	TypeBook     = "book"
	TypeQuestion = "question"
)

// Unknown is the placeholder for missing hierarchy values.
const Unknown = "unknown"

// Chunk is one retrievable span of source text.
type Chunk struct {
	ID             string `json:"id"`
	Collection     string `json:"collection"`
	Content        string `json:"content"`
	Subject        string `json:"subject"`
	Topic          string `json:"topic"`
	Subtopic       string `json:"subtopic,omitempty"`
	Type           string `json:"type"`
	SourceDocument string `json:"source_document"`
	PageRange      string `json:"page_range,omitempty"`
	// SequenceIndex is the chunk's position within SourceDocument. A
	// negative value asks the store to assign the next position.
	SequenceIndex int       `json:"sequence_index"`
	Hierarchy     Hierarchy `json:"hierarchy"`
	Embedding     []float32 `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// Hierarchy is the institutional scope of a chunk or question.
type Hierarchy struct {
	University string `json:"university"`
	Course     string `json:"course"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`
	PaperType  string `json:"paper_type"`
}

// WithDefaults replaces empty string fields with "unknown".
func (h Hierarchy) WithDefaults() Hierarchy {
	orUnknown := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return Unknown
		}
		return s
	}
	h.University = orUnknown(h.University)
	h.Course = orUnknown(h.Course)
	h.Department = orUnknown(h.Department)
	h.PaperType = orUnknown(h.PaperType)
	return h
}

// ScoredChunk is a search hit. IsContext marks neighbours pulled in around
// a hit; they carry no score of their own.
type ScoredChunk struct {
	Chunk
	Score     float64 `json:"score"`
	IsContext bool    `json:"is_context,omitempty"`
}

// Filter selects chunks within a collection. Stores normalize it before use.
type Filter struct {
	Subject  string
	Topic    string
	Subtopic string
	Type     string
}

// Normalized returns f in stored form.
func (f Filter) Normalized() Filter {
	out := Filter{
		Subject:  NormalizeSubject(f.Subject),
		Topic:    NormalizeTag(f.Topic),
		Subtopic: NormalizeTag(f.Subtopic),
		Type:     f.Type,
	}
	if out.Type == "" {
		out.Type = TypeBook
	}
	return out
}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	Name   string `json:"name"`
	Points int    `json:"points_count"`
}

var (
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	nonNameChar = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// NormalizeTag lowercases s and drops every non-alphanumeric character.
// It is idempotent.
func NormalizeTag(s string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(s, ""))
}

// NormalizeSubject is the stored form of a subject: trimmed and upper-cased.
func NormalizeSubject(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SanitizeName replaces characters outside [A-Za-z0-9_-] with underscores
// and lowercases the result.
func SanitizeName(s string) string {
	return strings.ToLower(nonNameChar.ReplaceAllString(s, "_"))
}

// CollectionName derives the collection for a (course, subject, topic)
// tuple. Ingestion and retrieval must both use it or lookups miss.
func CollectionName(course, subject, topic string) string {
	if course == "" {
		course = "general"
	}
	return SanitizeName(course) + "_" + SanitizeName(subject) + "_" + SanitizeName(topic)
}

func normalizeChunk(c Chunk) Chunk {
	c.Subject = NormalizeSubject(c.Subject)
	c.Topic = NormalizeTag(c.Topic)
	c.Subtopic = NormalizeTag(c.Subtopic)
	if c.Type == "" {
		c.Type = TypeBook
	}
	c.Hierarchy = c.Hierarchy.WithDefaults()
	return c
}
