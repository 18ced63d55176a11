package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/abhisek/qforge/internal/policy"
)

// HierarchyVerdict is the answer of a HierarchyChecker.
type HierarchyVerdict struct {
	Valid  bool
	Reason string
}

// HierarchyChecker confirms that a subject and topic pair is a known
// combination for a course. It is advisory: errors are treated as valid.
type HierarchyChecker interface {
	CheckHierarchy(ctx context.Context, course, subject, topic, subtopic string) (HierarchyVerdict, error)
}

// PolicyTopics checks topics against the topic lists in course policies.
// Subjects without a topic list accept any topic.
type PolicyTopics struct {
	Policies *policy.Registry
}

func (p PolicyTopics) CheckHierarchy(_ context.Context, course, subject, topic, _ string) (HierarchyVerdict, error) {
	if p.Policies == nil {
		return HierarchyVerdict{}, fmt.Errorf("no policy registry")
	}
	pol := p.Policies.Resolve(course)
	topics := pol.Topics(subject)
	if len(topics) == 0 {
		return HierarchyVerdict{Valid: true}, nil
	}
	if slices.ContainsFunc(topics, func(t string) bool { return strings.EqualFold(t, topic) }) {
		return HierarchyVerdict{Valid: true}, nil
	}
	return HierarchyVerdict{Reason: fmt.Sprintf("topic %q is not listed for %s in course %s", topic, subject, pol.Code)}, nil
}
