package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/abhisek/qforge/internal/orchestrator"
	"github.com/abhisek/qforge/internal/questiongen"
)

func parseGenerate(t *testing.T, stdin string, args ...string) (questiongen.Request, error) {
	t.Helper()
	c := &cobra.Command{Use: "generate"}
	addGenerateFlags(c.Flags())
	c.SetIn(strings.NewReader(stdin))
	if err := c.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return requestFromFlags(c)
}

func TestRequestFromFlags(t *testing.T) {
	req, err := parseGenerate(t, "",
		"--course", "bcom", "--subject", "Financial Accounting", "--topic", "Depreciation",
		"-n", "3", "--type", "descriptive", "--descriptive-type", "short",
		"--semester", "2", "--no-save", "--max-retries", "1")
	if err != nil {
		t.Fatalf("requestFromFlags: %v", err)
	}
	if req.Course != "bcom" || req.Subject != "Financial Accounting" || req.Topic != "Depreciation" {
		t.Errorf("scope = %+v", req)
	}
	if req.NumQuestions != 3 || req.QuestionType != "descriptive" || req.DescriptiveSubtype != "short" || req.Semester != 2 {
		t.Errorf("request = %+v", req)
	}
	if req.SaveToStore == nil || *req.SaveToStore {
		t.Error("--no-save should disable saving")
	}
	if req.UseValidation != nil {
		t.Error("validation should defer to the policy")
	}
	if req.MaxRetries == nil || *req.MaxRetries != 1 {
		t.Errorf("max retries = %v", req.MaxRetries)
	}
}

func TestRequestFromFlags_PolicyDefaults(t *testing.T) {
	req, err := parseGenerate(t, "", "--subject", "Economics", "--topic", "Demand")
	if err != nil {
		t.Fatalf("requestFromFlags: %v", err)
	}
	if req.MaxRetries != nil || req.QuestionType != "" || req.Difficulty != "" {
		t.Errorf("unset flags must stay empty so the policy decides: %+v", req)
	}
}

func TestRequestFromFlags_JSONStdin(t *testing.T) {
	body := `{"subject": "Economics", "topic": "Demand", "num_questions": 4, "question_type": "mcq", "use_validation": false}`
	req, err := parseGenerate(t, body, "--request", "-")
	if err != nil {
		t.Fatalf("requestFromFlags: %v", err)
	}
	if req.Subject != "Economics" || req.NumQuestions != 4 {
		t.Errorf("request = %+v", req)
	}
	if req.UseValidation == nil || *req.UseValidation {
		t.Errorf("use_validation = %v", req.UseValidation)
	}
}

func TestRequestFromFlags_BadJSON(t *testing.T) {
	if _, err := parseGenerate(t, "{", "--request", "-"); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
		check    func(t *testing.T, body errorBody)
	}{
		{
			name: "policy violation",
			err: &orchestrator.PolicyViolationError{
				Course: "bcom", Subject: "Chemistry", Allowed: []string{"Financial Accounting"}, Reason: "subject not offered",
			},
			wantKind: "PolicyViolation",
			check: func(t *testing.T, body errorBody) {
				if len(body.Allowed) != 1 {
					t.Errorf("allowed = %v", body.Allowed)
				}
			},
		},
		{
			name:     "invalid request",
			err:      &questiongen.RequestError{Fields: []questiongen.FieldError{{Field: "topic", Tag: "required", Message: "topic is required"}}},
			wantKind: "InvalidRequest",
			check: func(t *testing.T, body errorBody) {
				if len(body.Fields) != 1 || body.Fields[0].Field != "topic" {
					t.Errorf("fields = %+v", body.Fields)
				}
			},
		},
		{
			name:     "exhausted",
			err:      &orchestrator.AttemptsExhaustedError{Attempts: 3, Last: errors.New("boom")},
			wantKind: "Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeError(&buf, tt.err); err != nil {
				t.Fatalf("writeError: %v", err)
			}
			var doc map[string]errorBody
			if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
			}
			body, ok := doc["error"]
			if !ok {
				t.Fatalf("missing error key: %s", buf.String())
			}
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Message != tt.err.Error() {
				t.Errorf("message = %q", body.Message)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}
