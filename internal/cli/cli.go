package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lean-assistant/internal/app"
	"lean-assistant/internal/model"
	"lean-assistant/internal/source"
)

type KnowledgeBase interface {
	Ingest(ctx context.Context, docs []app.DocumentSource) (*model.IngestReport, error)
	Stats(ctx context.Context) model.IndexStats
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

// Runtime is what the commands operate on. Publisher is nil when
// RabbitMQ is disabled.
type Runtime struct {
	KnowledgeBase KnowledgeBase
	Publisher     JobPublisher
	KnowledgeDir  string
	Close         func() error
}

// Opener builds a Runtime on first use so that --help never dials anything.
type Opener func(ctx context.Context) (*Runtime, error)

func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "lean-ingest",
		Short:         "Manage the Lean knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIngestCommand(open), newStatsCommand(open))
	return root
}

func newIngestCommand(open Opener) *cobra.Command {
	var (
		dir   string
		queue bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index every .pdf, .txt and .md file in a directory",
		Long: `Scans a directory for supported documents, chunks and embeds them,
and upserts the chunks into the vector store. Re-running over the same
files overwrites the existing chunks.

With --queue the extracted text is published to the ingest queue instead
and the server's worker does the indexing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			if dir == "" {
				dir = rt.KnowledgeDir
			}
			docs, err := source.ScanDirectory(dir)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				cmd.Printf("No supported documents found in %s\n", dir)
				return nil
			}

			if queue {
				return publishAll(ctx, cmd, rt.Publisher, docs)
			}
			return ingestAll(ctx, cmd, rt.KnowledgeBase, docs)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to scan (defaults to rag.knowledge_dir)")
	cmd.Flags().BoolVar(&queue, "queue", false, "publish documents to the ingest queue instead of indexing inline")
	return cmd
}

func ingestAll(ctx context.Context, cmd *cobra.Command, kb KnowledgeBase, docs []app.DocumentSource) error {
	cmd.Printf("Ingesting %d documents...\n", len(docs))
	report, err := kb.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printReport(cmd, report)
	if len(report.Failures) > 0 && len(report.ChunkCounts) == 0 {
		return errors.New("no documents were indexed")
	}
	return nil
}

func publishAll(ctx context.Context, cmd *cobra.Command, publisher JobPublisher, docs []app.DocumentSource) error {
	if publisher == nil {
		return errors.New("--queue requires rabbitmq.enabled")
	}
	published := 0
	for _, doc := range docs {
		text, err := doc.ExtractText()
		if err != nil {
			cmd.PrintErrf("skip %s: %v\n", doc.SourceName(), err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			cmd.PrintErrf("skip %s: no extractable text\n", doc.SourceName())
			continue
		}
		if err := publisher.Publish(ctx, model.IngestJob{Name: doc.SourceName(), Content: text}); err != nil {
			return fmt.Errorf("publish %s failed: %w", doc.SourceName(), err)
		}
		published++
	}
	cmd.Printf("Queued %d of %d documents\n", published, len(docs))
	return nil
}

func printReport(cmd *cobra.Command, report *model.IngestReport) {
	for name, n := range report.ChunkCounts {
		cmd.Printf("  %-40s %d chunks\n", name, n)
	}
	for _, f := range report.Failures {
		cmd.PrintErrf("  %-40s FAILED: %s\n", f.Document, f.Error)
	}
	cmd.Printf("Indexed %d chunks from %d documents, %d failed\n",
		report.TotalChunks(), len(report.ChunkCounts), len(report.Failures))
}

func newStatsCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			stats := rt.KnowledgeBase.Stats(cmd.Context())
			cmd.Printf("Collection: %s\n", stats.CollectionName)
			cmd.Printf("Status:     %s\n", stats.Status)
			cmd.Printf("Entries:    %d\n", stats.TotalEntries)
			return nil
		},
	}
}

func closeRuntime(cmd *cobra.Command, rt *Runtime) {
	if rt.Close == nil {
		return
	}
	if err := rt.Close(); err != nil {
		cmd.PrintErrf("close resources failed: %v\n", err)
	}
}

// Execute runs the root command and exits non-zero on error.
func Execute(ctx context.Context, open Opener) {
	if err := NewRootCommand(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
