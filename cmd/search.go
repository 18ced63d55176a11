package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/qforge/internal/content"
	"github.com/abhisek/qforge/internal/policy"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Similarity search over ingested content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		limit, _ := cmd.Flags().GetInt("limit")
		window, _ := cmd.Flags().GetInt("window")
		asJSON, _ := cmd.Flags().GetBool("json")
		course, _ := cmd.Flags().GetString("course")
		flagScore, _ := cmd.Flags().GetFloat64("min-score")
		query := strings.Join(args, " ")

		return withRuntime(cmd, func(rt *runtime) error {
			ctx := cmd.Context()
			r := rt.retriever()
			var pol *policy.Policy
			if course != "" {
				pol = rt.policies.Resolve(course)
			}
			minScore := minScoreFor(flagScore, pol, rt.cfg.Retrieval.MinSimilarity)

			var hits []content.ScoredChunk
			var err error
			if collection != "" {
				hits, err = r.SearchWindowed(ctx, content.SearchQuery{
					Collection: collection,
					Text:       query,
					Limit:      limit,
					MinScore:   minScore,
					Window:     window,
				})
			} else {
				hits, err = r.SearchAll(ctx, query, collection, limit, minScore)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching content.")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-6s  %-36s  %-24s  %5s  %s\n", "Score", "Collection", "Source", "Index", "Text")
			fmt.Fprintln(out, strings.Repeat("─", 110))
			for _, h := range hits {
				score := fmt.Sprintf("%.3f", h.Score)
				if h.IsContext {
					score = "ctx"
				}
				fmt.Fprintf(out, "%-6s  %-36s  %-24s  %5d  %s\n",
					score, truncate(h.Collection, 36), truncate(h.SourceDocument, 24), h.SequenceIndex,
					truncate(strings.Join(strings.Fields(h.Content), " "), 60))
			}
			return nil
		})
	},
}

// minScoreFor picks the search cutoff: the flag when given, then the
// course policy, then the configured default.
func minScoreFor(flagScore float64, pol *policy.Policy, fallback float64) float64 {
	if flagScore >= 0 {
		return flagScore
	}
	if pol != nil {
		return pol.Retrieval.MinSimilarity(fallback)
	}
	return fallback
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List content collections and their chunk counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			infos, err := rt.contents.Collections(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collections: %w", err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No collections.")
				return nil
			}
			fmt.Fprintf(out, "%-50s  %8s\n", "Collection", "Chunks")
			fmt.Fprintln(out, strings.Repeat("─", 60))
			for _, info := range infos {
				fmt.Fprintf(out, "%-50s  %8d\n", info.Name, info.Points)
			}
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().StringP("collection", "c", "", "Search one collection (default: all)")
	searchCmd.Flags().IntP("limit", "n", 10, "Maximum hits")
	searchCmd.Flags().String("course", "", "Course whose policy sets the default similarity cutoff")
	searchCmd.Flags().Float64("min-score", -1, "Minimum cosine similarity (default: course policy, then QFORGE_MIN_SIMILARITY)")
	searchCmd.Flags().Int("window", -1, "Neighbouring chunks added around each hit with --collection (default QFORGE_WINDOW_SIZE)")
	searchCmd.Flags().Bool("json", false, "Print JSON")
	collectionsCmd.Flags().Bool("json", false, "Print JSON")
}
