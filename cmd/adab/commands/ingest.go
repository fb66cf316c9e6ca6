package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adab-ai/adab-go/internal/embedder"
	"github.com/adab-ai/adab-go/internal/ingestion"
	"github.com/adab-ai/adab-go/internal/logging"
	"github.com/adab-ai/adab-go/internal/rag"
)

// NewIngestCmd constructs the `adab ingest` command, which loads knowledge
// JSONL files into the vector store collections.
func NewIngestCmd() *cobra.Command {
	var collection string
	var batchSize int
	var skipInvalid bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Load knowledge JSONL files into the vector store",
		Long: `Embed and index knowledge files into the Qdrant vector store.

Each input file is JSONL: one record per line with a "content" field plus
collection-specific metadata. Guidelines require "category", book sections
require "target_culture" (with optional "book_title", "author", "chapter"),
and negative examples require "persona_id".

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: openai, cohere, azure (default: openai)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  adab ingest --collection guidelines data/guidelines.jsonl
  adab ingest --collection book_sections data/malay_parenting.jsonl data/swedish_parenting.jsonl
  adab ingest --collection negative_examples --skip-invalid data/avoid.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			switch collection {
			case rag.CollectionGuidelines, rag.CollectionBookSections, rag.CollectionNegativeExamples:
			default:
				return fmt.Errorf("ingest: unknown collection %q", collection)
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}

			// Probe the embedder before touching the store so a misconfigured
			// backend fails up front instead of mid-run with a collection
			// half upserted.
			wantDims := embedder.DefaultDimensions(embeddingBackend())
			if err := embedder.VerifyDimensions(ctx, emb, wantDims); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("embedder verified",
				slog.String("backend", embeddingBackend()),
				slog.Int("dimensions", wantDims),
			)

			store, err := openSearchStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			pipeline, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				BatchSize:   batchSize,
				SkipInvalid: skipInvalid,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			totalIngested, totalSkipped := 0, 0
			for _, path := range args {
				log.Info("ingesting file",
					slog.String("path", path),
					slog.String("collection", collection),
				)

				res, err := pipeline.IngestFile(ctx, collection, path, func(msg string) {
					log.Info(msg)
				})
				if err != nil {
					return err
				}
				totalIngested += res.Ingested
				totalSkipped += res.Skipped
			}

			log.Info("ingestion complete",
				slog.String("collection", collection),
				slog.Int("ingested", totalIngested),
				slog.Int("skipped", totalSkipped),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", rag.CollectionGuidelines,
		"Target collection (guidelines, book_sections, negative_examples)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per embedding batch (default 32)")
	cmd.Flags().BoolVar(&skipInvalid, "skip-invalid", false, "Skip records that fail validation instead of aborting")

	return cmd
}
