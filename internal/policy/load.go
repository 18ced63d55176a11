package policy

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policies/*.yaml
var embedded embed.FS

// LoadDefaults loads the built-in course policies.
func LoadDefaults() (*Table, error) {
	sub, err := fs.Sub(embedded, "policies")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads the built-in policies and overlays every policy file found
// in dir. An empty dir returns the defaults.
func LoadDir(dir string) (*Table, error) {
	sub, err := fs.Sub(embedded, "policies")
	if err != nil {
		return nil, err
	}
	base, err := parseAll(sub)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return NewTable(base...)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy dir %s is not a directory", dir)
	}
	overlay, err := parseAll(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	return NewTable(append(base, overlay...)...)
}

// Load parses every *.yaml and *.yml file at the root of fsys, one policy
// per file.
func Load(fsys fs.FS) (*Table, error) {
	policies, err := parseAll(fsys)
	if err != nil {
		return nil, err
	}
	return NewTable(policies...)
}

func parseAll(fsys fs.FS) ([]*Policy, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}

	var out []*Policy
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		p, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if p.Code == "" {
			p.Code = strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		}
		out = append(out, p)
	}
	return out, nil
}

func parse(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("parse yaml: multiple documents are not supported")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &p, nil
}

// withDefaults fills settings a policy file may omit.
func withDefaults(p Policy) *Policy {
	p.Code = NormalizeCode(p.Code)
	if p.EducationLevel == "" {
		p.EducationLevel = "undergraduate"
	}
	if p.DefaultDifficulty == "" {
		p.DefaultDifficulty = "MEDIUM"
	}
	if p.Retrieval.MaxChunks == 0 {
		p.Retrieval.MaxChunks = 20
	}
	return &p
}

func (p *Policy) validate() error {
	if p.Validation.MaxRetries < 0 || p.Validation.MaxRetries > 10 {
		return fmt.Errorf("policy %s: max_retries must be within [0,10], got %d", p.Code, p.Validation.MaxRetries)
	}
	if p.Retrieval.SimilarityThreshold < 0 || p.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("policy %s: similarity_threshold must be within [0,1], got %g", p.Code, p.Retrieval.SimilarityThreshold)
	}
	if p.Retrieval.MaxChunks < 1 {
		return fmt.Errorf("policy %s: max_chunks must be at least 1, got %d", p.Code, p.Retrieval.MaxChunks)
	}
	switch p.DefaultDifficulty {
	case "EASY", "MEDIUM", "HARD":
	default:
		return fmt.Errorf("policy %s: unknown default_difficulty %q", p.Code, p.DefaultDifficulty)
	}

	seen := make(map[string]bool, len(p.Subjects))
	for _, s := range p.Subjects {
		if s.Name == "" {
			return fmt.Errorf("policy %s: subject without a name", p.Code)
		}
		if seen[s.Name] {
			return fmt.Errorf("policy %s: duplicate subject %q", p.Code, s.Name)
		}
		seen[s.Name] = true
		for _, qt := range s.AllowedQuestionTypes {
			if !slices.Contains(allQuestionTypes, qt) {
				return fmt.Errorf("policy %s: subject %q allows unknown question type %q", p.Code, s.Name, qt)
			}
		}
		if s.DefaultQuestionType != "" && !slices.Contains(allQuestionTypes, s.DefaultQuestionType) {
			return fmt.Errorf("policy %s: subject %q has unknown default question type %q", p.Code, s.Name, s.DefaultQuestionType)
		}
	}
	return nil
}
