package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/content"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Chunk, embed and store study material",
	Long: `Ingest plain-text study material into the content store.

Each file is split into chunks, embedded and stored in the collection for
its course, subject and topic. Use - to read from stdin. Needs
QFORGE_DATABASE_URL; without it chunks only live for this process.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		doc := content.Document{}
		doc.Subject, _ = f.GetString("subject")
		doc.Topic, _ = f.GetString("topic")
		doc.Subtopic, _ = f.GetString("subtopic")
		doc.PageRange, _ = f.GetString("pages")
		doc.Hierarchy.Course, _ = f.GetString("course")
		doc.Hierarchy.University, _ = f.GetString("university")
		doc.Hierarchy.Department, _ = f.GetString("department")
		doc.Hierarchy.Semester, _ = f.GetInt("semester")
		doc.Hierarchy.PaperType, _ = f.GetString("paper-type")
		chunkChars, _ := f.GetInt("chunk-chars")

		return withRuntime(cmd, func(rt *runtime) error {
			ctx := cmd.Context()
			ingestor := content.NewIngestor(rt.contents, rt.embedder, content.Chunker{MaxChars: chunkChars}, rt.log)

			var total int
			var coll string
			for _, path := range args {
				text, err := readSource(cmd, path)
				if err != nil {
					return err
				}
				d := doc
				d.Source = filepath.Base(path)
				if path == "-" {
					d.Source = "stdin"
				}
				res, err := ingestor.IngestText(ctx, d, text)
				total += len(res.ChunkIDs)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				coll = res.Collection
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s  %4d chunks  → %s\n", path, len(res.ChunkIDs), res.Collection)
			}

			if rt.cache != nil && coll != "" {
				cached := content.NewCachedRetriever(rt.retriever(), rt.cache, rt.cfg.Cache.RetrievalTTL, rt.log)
				if n, err := cached.Invalidate(ctx, coll); err != nil {
					rt.log.Warn("retrieval cache invalidation failed", zap.String("collection", coll), zap.Error(err))
				} else if n > 0 {
					rt.log.Info("retrieval cache invalidated", zap.String("collection", coll), zap.Int("keys", n))
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d chunks stored\n", total)
			return nil
		})
	},
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

func init() {
	f := ingestCmd.Flags()
	f.String("course", "", "Course code")
	f.String("subject", "", "Subject name (required)")
	f.String("topic", "", "Topic name (required)")
	f.String("subtopic", "", "Subtopic name")
	f.String("pages", "", "Page range of the source, for reference")
	f.String("university", "", "University")
	f.String("department", "", "Department")
	f.Int("semester", 0, "Semester")
	f.String("paper-type", "", "Paper type")
	f.Int("chunk-chars", content.DefaultChunkChars, "Maximum characters per chunk")
	_ = ingestCmd.MarkFlagRequired("subject")
	_ = ingestCmd.MarkFlagRequired("topic")
}
