// Package ingestion loads knowledge JSONL files into the vector store.
// Each line is parsed into a record, validated against its target
// collection's requirements, embedded in batches, and upserted.
// This pipeline is invoked by the `adab ingest` CLI command.
package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/adab-ai/adab-go/internal/rag"
)

// maxLineBytes bounds a single JSONL line. Book sections can be long but a
// megabyte of content in one record is a malformed file, not knowledge.
const maxLineBytes = 1 << 20

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of records embedded and upserted per round trip.
	// Defaults to 32 if zero.
	BatchSize int

	// SkipInvalid makes the pipeline log-and-continue past records that fail
	// validation instead of aborting the file. Malformed JSON always aborts.
	SkipInvalid bool
}

// Result summarises one ingestion run.
type Result struct {
	// Ingested is the number of records stored.
	Ingested int

	// Skipped is the number of invalid records passed over. Always zero
	// unless SkipInvalid is set.
	Skipped int
}

// Pipeline orchestrates the parse → validate → embed → upsert flow for
// knowledge JSONL files.
type Pipeline struct {
	// embedder converts record content into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded records.
	store rag.SearchStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.SearchStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	return &Pipeline{embedder: embedder, store: store, cfg: cfg}, nil
}

// IngestFile parses the JSONL file at path and loads it into the named
// collection. Progress is reported via the optional progress callback.
func (p *Pipeline) IngestFile(ctx context.Context, collection, path string, progress func(msg string)) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open %s: %w", path, err)
	}
	defer f.Close()

	res, err := p.Ingest(ctx, collection, f, progress)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: %w", path, err)
	}
	return res, nil
}

// Ingest parses JSONL records from r and loads them into the named
// collection in batches. It returns the first error encountered unless
// SkipInvalid downgrades validation failures to skips.
func (p *Pipeline) Ingest(ctx context.Context, collection string, r io.Reader, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}

	res := &Result{}
	batch := make([]rag.KnowledgeItem, 0, p.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.upsertBatch(ctx, collection, batch); err != nil {
			return err
		}
		res.Ingested += len(batch)
		progress(fmt.Sprintf("ingested %d records into %s", res.Ingested, collection))
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := rec.validate(collection); err != nil {
			if p.cfg.SkipInvalid {
				res.Skipped++
				progress(fmt.Sprintf("skipping line %d: %v", line, err))
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		batch = append(batch, rec.toItem(collection))
		if len(batch) == p.cfg.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return res, nil
}

// upsertBatch embeds one batch of items and writes it to the store.
func (p *Pipeline) upsertBatch(ctx context.Context, collection string, items []rag.KnowledgeItem) error {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Content
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if err := p.store.Upsert(ctx, collection, items, embeddings); err != nil {
		return fmt.Errorf("upserting batch: %w", err)
	}
	return nil
}
