package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/abhisek/qforge/internal/platform/config"
	"github.com/abhisek/qforge/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "qforge",
	Short:         "Course question generator",
	Long:          "qforge generates course-aligned MCQ and descriptive questions from ingested study material.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. ctx is canceled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides QFORGE_DB env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides QFORGE_LOG_LEVEL)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then QFORGE_DB, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg != nil && cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}
