package policy

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) *Table {
	t.Helper()
	tbl, err := LoadDefaults()
	require.NoError(t, err)
	return tbl
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"BCom", "bcom"},
		{"BA English", "ba_english"},
		{"  ba_english ", "ba_english"},
		{"", DefaultCode},
		{"   ", DefaultCode},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCode(tt.in), "NormalizeCode(%q)", tt.in)
	}
}

func TestLoadDefaults(t *testing.T) {
	tbl := defaults(t)

	assert.Equal(t, []string{"ba_english", "bcom"}, tbl.Courses())
	assert.Equal(t, 3, tbl.Len())

	bcom := tbl.Resolve("BCOM")
	assert.Equal(t, "Bachelor of Commerce", bcom.DisplayName)
	assert.Equal(t, 20, bcom.Retrieval.MaxChunks)
	assert.InDelta(t, 0.7, bcom.Retrieval.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.7, bcom.Retrieval.MinSimilarity(0.5), 1e-9)
	assert.InDelta(t, 0.5, RetrievalSettings{}.MinSimilarity(0.5), 1e-9)
	assert.Equal(t, 2, bcom.Validation.MaxRetries)
	assert.True(t, bcom.Validation.Enabled())
	assert.Contains(t, bcom.Prompts.FocusInstruction, "numerical examples")

	s, ok := bcom.Subject("Accounting For Public Sector")
	require.True(t, ok)
	assert.Equal(t, 15, s.MarksDistribution["long_essay"])

	eng := tbl.Resolve("BA English")
	assert.Equal(t, 25, eng.Retrieval.MaxChunks)
	assert.Equal(t, "mcq", eng.DefaultQuestionType("Grammar"))
	assert.Equal(t, "descriptive", eng.DefaultQuestionType("Literature"))
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	tbl := defaults(t)

	for _, code := range []string{"", "mba", "Unknown Course"} {
		p := tbl.Resolve(code)
		require.NotNil(t, p)
		assert.Equal(t, DefaultCode, p.Code, "code %q", code)
	}

	_, ok := tbl.Lookup("mba")
	assert.False(t, ok)
}

func TestEmptySubjectsAllowEverything(t *testing.T) {
	p := defaults(t).Resolve(DefaultCode)
	require.Empty(t, p.Subjects)

	for _, subject := range []string{"", "Quantum Basket Weaving", "Financial Accounting"} {
		assert.True(t, p.IsSubjectAllowed(subject))
		for _, qt := range []string{"mcq", "descriptive", "true_false", ""} {
			assert.True(t, p.IsQuestionTypeAllowed(subject, qt))
		}
	}
	assert.Equal(t, []string{"mcq", "descriptive"}, p.AllowedQuestionTypes("anything"))
	assert.Equal(t, "mcq", p.DefaultQuestionType("anything"))
}

func TestRestrictedSubjects(t *testing.T) {
	p := &Policy{
		Code: "law",
		Subjects: []Subject{
			{Name: "Contract Law", AllowedQuestionTypes: []string{"descriptive"}},
			{Name: "Torts"},
		},
	}

	tests := []struct {
		subject, qt string
		subjectOK   bool
		typeOK      bool
	}{
		{"Contract Law", "descriptive", true, true},
		{"Contract Law", "mcq", true, false},
		{"Torts", "mcq", true, true},
		{"contract law", "mcq", false, true},
		{"Evidence", "mcq", false, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.subjectOK, p.IsSubjectAllowed(tt.subject), "subject %q", tt.subject)
		assert.Equal(t, tt.typeOK, p.IsQuestionTypeAllowed(tt.subject, tt.qt), "%q/%q", tt.subject, tt.qt)
	}
	assert.Equal(t, []string{"Contract Law", "Torts"}, p.AvailableSubjects())
	assert.Equal(t, []string{"descriptive"}, p.AllowedQuestionTypes("Contract Law"))
}

func TestLoad_SynthesizesDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"mba.yml": {Data: []byte("code: mba\nsubjects:\n  - name: Marketing\n")},
		"README":  {Data: []byte("ignored")},
	}
	tbl, err := Load(fsys)
	require.NoError(t, err)

	assert.Equal(t, []string{"mba"}, tbl.Courses())
	def := tbl.Resolve("nope")
	assert.Equal(t, DefaultCode, def.Code)
	assert.Equal(t, 2, def.Validation.MaxRetries)

	mba := tbl.Resolve("mba")
	assert.Equal(t, "undergraduate", mba.EducationLevel)
	assert.Equal(t, "MEDIUM", mba.DefaultDifficulty)
	assert.Equal(t, 20, mba.Retrieval.MaxChunks)
}

func TestLoad_CodeFromFileName(t *testing.T) {
	tbl, err := Load(fstest.MapFS{"BSc Physics.yaml": {Data: []byte("display_name: Physics\n")}})
	require.NoError(t, err)
	p, ok := tbl.Lookup("bsc_physics")
	require.True(t, ok)
	assert.Equal(t, "Physics", p.DisplayName)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "code: x\nretries: 3\n"},
		{"retries out of range", "code: x\nvalidation:\n  max_retries: 11\n"},
		{"negative retries", "code: x\nvalidation:\n  max_retries: -1\n"},
		{"threshold out of range", "code: x\nretrieval:\n  similarity_threshold: 1.2\n"},
		{"negative chunks", "code: x\nretrieval:\n  max_chunks: -5\n"},
		{"bad question type", "code: x\nsubjects:\n  - name: A\n    allowed_question_types: [essay]\n"},
		{"bad default type", "code: x\nsubjects:\n  - name: A\n    default_question_type: essay\n"},
		{"duplicate subject", "code: x\nsubjects:\n  - name: A\n  - name: A\n"},
		{"bad difficulty", "code: x\ndefault_difficulty: IMPOSSIBLE\n"},
		{"multiple documents", "code: x\n---\ncode: y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(fstest.MapFS{"x.yaml": {Data: []byte(tt.yaml)}})
			assert.Error(t, err)
		})
	}
}

func TestLoadDir_Overlay(t *testing.T) {
	dir := t.TempDir()
	override := "code: bcom\ndisplay_name: Commerce (2026 syllabus)\nvalidation:\n  use_reflection: false\n  use_selector: true\n  max_retries: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bcom.yaml"), []byte(override), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mba.yaml"), []byte("code: mba\n"), 0o644))

	tbl, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"ba_english", "bcom", "mba"}, tbl.Courses())
	bcom := tbl.Resolve("bcom")
	assert.Equal(t, "Commerce (2026 syllabus)", bcom.DisplayName)
	assert.Equal(t, 4, bcom.Validation.MaxRetries)
	assert.False(t, bcom.Validation.UseReflection)
	assert.Empty(t, bcom.Subjects, "overlay replaces the whole policy")

	empty, err := LoadDir("")
	require.NoError(t, err)
	assert.Equal(t, 3, empty.Len())

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRegistry_Reload(t *testing.T) {
	r := NewRegistry(defaults(t))
	before := r.Current()

	err := r.Reload(func() (*Table, error) { return nil, errors.New("broken file") })
	require.Error(t, err)
	assert.Same(t, before, r.Current(), "failed reload keeps the previous table")

	next, err := NewTable(&Policy{Code: "mba"})
	require.NoError(t, err)
	require.NoError(t, r.Reload(func() (*Table, error) { return next, nil }))

	assert.Same(t, next, r.Current())
	assert.Equal(t, "mba", r.Resolve("MBA").Code)
	assert.Equal(t, "Bachelor of Commerce", before.Resolve("bcom").DisplayName, "old table is untouched")
}

func TestRegistry_ReloadRejectsNilTable(t *testing.T) {
	r := NewRegistry(defaults(t))
	before := r.Current()

	err := r.Reload(func() (*Table, error) { return nil, nil })
	require.ErrorIs(t, err, ErrNoTable)
	assert.Same(t, before, r.Current())
	assert.Equal(t, "bcom", r.Resolve("bcom").Code)
}

func TestRegistry_ReloadOn(t *testing.T) {
	r := NewRegistry(defaults(t))
	next, err := NewTable(&Policy{Code: "mba"})
	require.NoError(t, err)

	trigger := make(chan os.Signal)
	results := make(chan error)
	stopped := make(chan struct{})
	loads := []*Table{nil, next}
	go func() {
		defer close(stopped)
		r.ReloadOn(t.Context(), trigger, func() (*Table, error) {
			tbl := loads[0]
			loads = loads[1:]
			return tbl, nil
		}, func(err error) { results <- err })
	}()

	trigger <- syscall.SIGHUP
	require.ErrorIs(t, <-results, ErrNoTable)
	assert.Equal(t, "bcom", r.Resolve("bcom").Code)

	trigger <- syscall.SIGHUP
	require.NoError(t, <-results)
	assert.Same(t, next, r.Current())

	close(trigger)
	<-stopped
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry(defaults(t))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				p := r.Resolve("bcom")
				if p == nil {
					t.Error("nil policy")
					return
				}
			}
		}()
		if i == 4 {
			require.NoError(t, r.Reload(LoadDefaults))
		}
	}
	wg.Wait()
}
