package policy

import (
	"sort"
	"strings"
)

// NormalizeCode lowercases code and replaces spaces with underscores.
// An empty code maps to DefaultCode.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return DefaultCode
	}
	return strings.ReplaceAll(strings.ToLower(code), " ", "_")
}

// Table is an immutable set of policies keyed by course code. It is safe
// for concurrent reads.
type Table struct {
	policies map[string]*Policy
}

// NewTable builds a table from policies. A default policy is synthesized
// when none is given. Later entries with the same code replace earlier ones.
func NewTable(policies ...*Policy) (*Table, error) {
	t := &Table{policies: make(map[string]*Policy, len(policies)+1)}
	for _, p := range policies {
		cp := withDefaults(*p)
		if err := cp.validate(); err != nil {
			return nil, err
		}
		t.policies[cp.Code] = cp
	}
	if _, ok := t.policies[DefaultCode]; !ok {
		t.policies[DefaultCode] = builtinDefault()
	}
	return t, nil
}

// Resolve returns the policy for code, falling back to the default policy.
// It never returns nil.
func (t *Table) Resolve(code string) *Policy {
	if p, ok := t.policies[NormalizeCode(code)]; ok {
		return p
	}
	return t.policies[DefaultCode]
}

// Lookup returns the policy for code without falling back.
func (t *Table) Lookup(code string) (*Policy, bool) {
	p, ok := t.policies[NormalizeCode(code)]
	return p, ok
}

// Courses returns the configured course codes, sorted, excluding default.
func (t *Table) Courses() []string {
	codes := make([]string, 0, len(t.policies))
	for code := range t.policies {
		if code != DefaultCode {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of policies including default.
func (t *Table) Len() int { return len(t.policies) }
