package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/qforge/internal/policy"
	"github.com/abhisek/qforge/internal/store"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Review stored questions",
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored questions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var filter store.QuestionFilter
		if c, _ := f.GetString("course"); c != "" {
			filter.Course = policy.NormalizeCode(c)
		}
		filter.Subject, _ = f.GetString("subject")
		filter.Topic, _ = f.GetString("topic")
		filter.QuestionType, _ = f.GetString("type")
		filter.Status, _ = f.GetString("status")
		filter.Limit, _ = f.GetInt("limit")
		asJSON, _ := f.GetBool("json")

		if filter.Status != "" && !store.ValidStatus(filter.Status) {
			return fmt.Errorf("unknown status %q", filter.Status)
		}

		return withRuntime(cmd, func(rt *runtime) error {
			qs, err := rt.questions.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list questions: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, qs)
			}
			if len(qs) == 0 {
				fmt.Fprintln(out, "No questions found.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-19s  %-10s  %-8s  %-6s  %-20s  %s\n",
				"ID", "Created", "Course", "Status", "Type", "Topic", "Question")
			fmt.Fprintln(out, strings.Repeat("─", 140))
			for _, q := range qs {
				fmt.Fprintf(out, "%-36s  %-19s  %-10s  %-8s  %-6s  %-20s  %s\n",
					q.ID,
					q.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					truncate(q.Meta.Course, 10),
					q.Status,
					truncate(q.QuestionType, 6),
					truncate(q.Meta.Topic, 20),
					truncate(q.Text, 50))
			}
			fmt.Fprintf(out, "\n%d questions\n", len(qs))
			return nil
		})
	},
}

func reviewCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				var failed int
				for _, id := range args {
					err := rt.questions.SetStatus(cmd.Context(), id, status)
					switch {
					case errors.Is(err, store.ErrQuestionNotFound):
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", id)
					case err != nil:
						return fmt.Errorf("update %s: %w", id, err)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, status)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d question(s) not found", failed)
				}
				return nil
			})
		},
	}
}

func init() {
	f := questionsListCmd.Flags()
	f.String("course", "", "Filter by course")
	f.String("subject", "", "Filter by subject")
	f.String("topic", "", "Filter by topic")
	f.String("type", "", "Filter by question type")
	f.String("status", "", "Filter by status: pending, approved or rejected")
	f.IntP("limit", "n", 20, "Maximum questions to show")
	f.Bool("json", false, "Print JSON")

	questionsCmd.AddCommand(questionsListCmd)
	questionsCmd.AddCommand(reviewCmd("approve", "Approve questions for reuse and duplicate checks", store.StatusApproved))
	questionsCmd.AddCommand(reviewCmd("reject", "Reject questions", store.StatusRejected))
}
