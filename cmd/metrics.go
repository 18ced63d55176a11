package cmd

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/qforge/internal/metrics"
	"github.com/abhisek/qforge/internal/policy"
	"github.com/abhisek/qforge/internal/store"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Report generation outcomes per course",
}

var metricsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show success rate and timing per course",
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		if course != "" {
			course = policy.NormalizeCode(course)
		}
		return withRuntime(cmd, func(rt *runtime) error {
			agg, err := loadMetrics(cmd.Context(), rt, course)
			if err != nil {
				return err
			}
			courses := agg.Courses()
			if len(courses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No generation events recorded yet.")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s  %8s  %9s  %7s  %11s  %8s  %8s\n",
				"Course", "Requests", "Successes", "Errors", "Val. Fails", "Rate %", "Avg s")
			fmt.Fprintln(out, strings.Repeat("─", 84))
			for _, c := range courses {
				s := agg.CourseSummary(c)
				fmt.Fprintf(out, "%-16s  %8d  %9d  %7d  %11d  %8.2f  %8.2f\n",
					truncate(c, 16), s.TotalRequests, s.Successes, s.Errors, s.ValidationFailures, s.SuccessRate, s.AverageTime)
			}
			return nil
		})
	},
}

var metricsErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Break down errors by type for a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		course = policy.NormalizeCode(course)
		limit, _ := cmd.Flags().GetInt("limit")
		return withRuntime(cmd, func(rt *runtime) error {
			agg, err := loadMetrics(cmd.Context(), rt, course)
			if err != nil {
				return err
			}
			rep := agg.ErrorReport(course, limit)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Course: %s\nTotal errors: %d\n\n", rep.Course, rep.TotalErrors)
			if rep.TotalErrors == 0 {
				return nil
			}

			types := make([]string, 0, len(rep.ErrorsByType))
			for t := range rep.ErrorsByType {
				types = append(types, t)
			}
			sort.Slice(types, func(i, j int) bool { return rep.ErrorsByType[types[i]] > rep.ErrorsByType[types[j]] })
			for _, t := range types {
				fmt.Fprintf(out, "  %-24s  %5d\n", t, rep.ErrorsByType[t])
			}

			fmt.Fprintln(out, "\nRecent errors")
			fmt.Fprintln(out, strings.Repeat("─", 100))
			for _, e := range rep.RecentErrors {
				fmt.Fprintf(out, "%s  %-20s  %-24s  %s\n",
					e.At.Local().Format("2006-01-02 15:04:05"), e.ErrorType, truncate(e.Topic, 24), truncate(e.Message, 48))
			}
			return nil
		})
	},
}

var metricsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-course summaries as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("out")
		return withRuntime(cmd, func(rt *runtime) error {
			agg, err := loadMetrics(cmd.Context(), rt, "")
			if err != nil {
				return err
			}
			if path == "" || path == "-" {
				return agg.Export(cmd.OutOrStdout())
			}
			if err := agg.ExportFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "metrics exported to %s\n", path)
			return nil
		})
	},
}

// loadMetrics rebuilds the aggregator from persisted generation events,
// preferring Postgres when configured.
func loadMetrics(ctx context.Context, rt *runtime, course string) (*metrics.Aggregator, error) {
	if rt.pgMetrics != nil {
		events, err := rt.pgMetrics.Events(ctx, course)
		if err != nil {
			return nil, err
		}
		return metrics.Summarize(events), nil
	}

	events, err := rt.store.EventRepo().QueryGenerationEvents(ctx, store.GenerationQuery{Course: course})
	if err != nil {
		return nil, fmt.Errorf("query generation events: %w", err)
	}
	slices.Reverse(events)
	return metrics.Summarize(events), nil
}

func init() {
	metricsSummaryCmd.Flags().String("course", "", "Only this course")
	metricsErrorsCmd.Flags().String("course", "default", "Course code")
	metricsErrorsCmd.Flags().IntP("limit", "n", 10, "Number of recent errors to show")
	metricsExportCmd.Flags().StringP("out", "o", "", "Write to a file instead of stdout")

	metricsCmd.AddCommand(metricsSummaryCmd)
	metricsCmd.AddCommand(metricsErrorsCmd)
	metricsCmd.AddCommand(metricsExportCmd)
}
