package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/abhisek/qforge/internal/orchestrator"
	"github.com/abhisek/qforge/internal/questiongen"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate questions for a course topic",
	Long: `Generate questions for a subject and topic using ingested course content.

The request is built from flags, or read as JSON with --request (use - for
stdin). The result is printed as JSON. Failures print a JSON error object
and exit non-zero.`,
	RunE: runGenerate,
}

func init() {
	addGenerateFlags(generateCmd.Flags())
}

func addGenerateFlags(f *pflag.FlagSet) {
	f.String("request", "", "Read the request as JSON from a file (- for stdin)")
	f.String("course", "", "Course code (e.g. bcom)")
	f.String("subject", "", "Subject name")
	f.String("topic", "", "Topic name")
	f.String("subtopic", "", "Subtopic name")
	f.IntP("count", "n", 5, "Number of questions")
	f.String("type", "", "Question type: mcq or descriptive (default from course policy)")
	f.String("descriptive-type", "", "Descriptive subtype: very_short, short or long_essay")
	f.String("difficulty", "", "EASY, MEDIUM or HARD (default from course policy)")
	f.String("university", "", "University")
	f.String("department", "", "Department")
	f.Int("semester", 0, "Semester (1-12)")
	f.String("paper-type", "", "Paper type")
	f.Int("max-retries", -1, "Validation retries (-1 uses the course policy)")
	f.Bool("no-validation", false, "Skip validation")
	f.Bool("no-save", false, "Do not store the generated questions")
	f.String("prompt", "", "Additional instructions for the generator")
}

// errReported marks a failure already written to stdout as JSON.
var errReported = errors.New("generation failed")

type errorBody struct {
	Kind    string                   `json:"kind"`
	Message string                   `json:"message"`
	Fields  []questiongen.FieldError `json:"fields,omitempty"`
	Allowed []string                 `json:"allowed,omitempty"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := requestFromFlags(cmd)
	if err != nil {
		return err
	}

	return withRuntime(cmd, func(rt *runtime) error {
		ctx := cmd.Context()
		orch, err := rt.orchestrator(ctx)
		if err != nil {
			return err
		}

		res, err := orch.Generate(ctx, req)
		out := cmd.OutOrStdout()
		if err != nil {
			if werr := writeError(out, err); werr != nil {
				return werr
			}
			return errReported
		}
		return writeJSON(out, res)
	})
}

func requestFromFlags(cmd *cobra.Command) (questiongen.Request, error) {
	f := cmd.Flags()
	var req questiongen.Request

	if path, _ := f.GetString("request"); path != "" {
		var r io.Reader = cmd.InOrStdin()
		if path != "-" {
			file, err := os.Open(path)
			if err != nil {
				return req, fmt.Errorf("open request: %w", err)
			}
			defer file.Close()
			r = file
		}
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			return req, fmt.Errorf("decode request: %w", err)
		}
		return req, nil
	}

	req.Course, _ = f.GetString("course")
	req.Subject, _ = f.GetString("subject")
	req.Topic, _ = f.GetString("topic")
	req.Subtopic, _ = f.GetString("subtopic")
	req.NumQuestions, _ = f.GetInt("count")
	req.QuestionType, _ = f.GetString("type")
	req.DescriptiveSubtype, _ = f.GetString("descriptive-type")
	req.Difficulty, _ = f.GetString("difficulty")
	req.University, _ = f.GetString("university")
	req.Department, _ = f.GetString("department")
	req.Semester, _ = f.GetInt("semester")
	req.PaperType, _ = f.GetString("paper-type")
	req.UserPrompt, _ = f.GetString("prompt")

	if n, _ := f.GetInt("max-retries"); n >= 0 {
		req.MaxRetries = &n
	}
	if off, _ := f.GetBool("no-validation"); off {
		v := false
		req.UseValidation = &v
	}
	if off, _ := f.GetBool("no-save"); off {
		v := false
		req.SaveToStore = &v
	}
	return req, nil
}

func writeError(w io.Writer, err error) error {
	body := errorBody{Kind: orchestrator.ErrorKind(err), Message: err.Error()}

	var re *questiongen.RequestError
	if errors.As(err, &re) {
		body.Fields = re.Fields
	}
	var pv *orchestrator.PolicyViolationError
	if errors.As(err, &pv) {
		body.Allowed = pv.Allowed
	}
	return writeJSON(w, map[string]errorBody{"error": body})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
