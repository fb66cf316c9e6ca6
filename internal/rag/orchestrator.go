package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CollectionParams holds the search tuning for one knowledge collection.
type CollectionParams struct {
	// Threshold is the minimum similarity score for a match.
	Threshold float32
	// Limit is the maximum number of matches to return.
	Limit int
}

// OrchestratorConfig holds the tuning for a retrieval round.
type OrchestratorConfig struct {
	// Guidelines tunes the guidelines collection search.
	Guidelines CollectionParams
	// BookSections tunes the book sections collection search.
	BookSections CollectionParams
	// NegativeExamples tunes the negative examples collection search.
	NegativeExamples CollectionParams

	// SearchTimeout bounds each collection search independently.
	// Zero means DefaultSearchTimeout.
	SearchTimeout time.Duration

	// Dimensions is the embedding dimension the collections are provisioned
	// for. Every query embedding is checked against it; zero disables the check.
	Dimensions int
}

// DefaultSearchTimeout bounds a single collection search.
const DefaultSearchTimeout = 5 * time.Second

// Default search tuning per collection. The guideline threshold runs tighter
// than the sparse collections.
var DefaultOrchestratorConfig = OrchestratorConfig{
	Guidelines:       CollectionParams{Threshold: 0.7, Limit: 3},
	BookSections:     CollectionParams{Threshold: 0.6, Limit: 2},
	NegativeExamples: CollectionParams{Threshold: 0.6, Limit: 2},
	SearchTimeout:    DefaultSearchTimeout,
}

// Orchestrator runs a retrieval round: it embeds the query once and fans the
// embedding out to every knowledge collection in parallel. A failed
// collection degrades to empty results; a failed embedding fails the round,
// since every search depends on it.
type Orchestrator struct {
	// embedder converts the query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity searches.
	store SearchStore

	// cfg holds the per-collection search tuning.
	cfg OrchestratorConfig

	// log receives per-collection degrade warnings.
	log *slog.Logger
}

// NewOrchestrator constructs an Orchestrator from the given Embedder and
// SearchStore. Zero-valued config fields fall back to the defaults.
func NewOrchestrator(embedder Embedder, store SearchStore, cfg OrchestratorConfig, log *slog.Logger) (*Orchestrator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	applyDefaults(&cfg)
	return &Orchestrator{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		log:      log,
	}, nil
}

// applyDefaults fills zero-valued tuning fields from DefaultOrchestratorConfig.
func applyDefaults(cfg *OrchestratorConfig) {
	def := DefaultOrchestratorConfig
	if cfg.Guidelines.Threshold == 0 {
		cfg.Guidelines.Threshold = def.Guidelines.Threshold
	}
	if cfg.Guidelines.Limit == 0 {
		cfg.Guidelines.Limit = def.Guidelines.Limit
	}
	if cfg.BookSections.Threshold == 0 {
		cfg.BookSections.Threshold = def.BookSections.Threshold
	}
	if cfg.BookSections.Limit == 0 {
		cfg.BookSections.Limit = def.BookSections.Limit
	}
	if cfg.NegativeExamples.Threshold == 0 {
		cfg.NegativeExamples.Threshold = def.NegativeExamples.Threshold
	}
	if cfg.NegativeExamples.Limit == 0 {
		cfg.NegativeExamples.Limit = def.NegativeExamples.Limit
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
}

// collectionSearch describes one fan-out target within a round.
type collectionSearch struct {
	name   string
	spec   SearchSpec
	assign func(*Bundle, []KnowledgeItem)
}

// Retrieve runs one retrieval round for the given request. The query is
// embedded exactly once; collections are searched concurrently, each under
// its own timeout. Collections that fail are recorded in Bundle.Degraded and
// contribute no items — the round itself only fails when the embedding does.
func (o *Orchestrator) Retrieve(ctx context.Context, req Request) (*Bundle, error) {
	embeddings, err := o.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}
	vector := embeddings[0]
	if o.cfg.Dimensions > 0 && len(vector) != o.cfg.Dimensions {
		return nil, fmt.Errorf("rag: query embedding has dimension %d, collections expect %d", len(vector), o.cfg.Dimensions)
	}

	searches := o.buildSearches(req)

	type result struct {
		items []KnowledgeItem
		err   error
	}
	results := make([]result, len(searches))

	var wg sync.WaitGroup
	for i, cs := range searches {
		wg.Add(1)
		go func(i int, cs collectionSearch) {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
			defer cancel()
			items, err := o.store.Search(searchCtx, cs.name, vector, cs.spec)
			results[i] = result{items: items, err: err}
		}(i, cs)
	}
	wg.Wait()

	bundle := &Bundle{
		Query:    req.Query,
		Filters:  buildFilters(req),
		Counts:   map[string]int{},
		Degraded: map[string]string{},
	}
	for i, cs := range searches {
		if err := results[i].err; err != nil {
			o.log.Warn("rag: collection search failed, degrading to empty",
				slog.String("collection", cs.name),
				slog.String("error", err.Error()),
			)
			bundle.Degraded[cs.name] = err.Error()
			bundle.Counts[cs.name] = 0
			continue
		}
		items := results[i].items
		if cs.name == CollectionGuidelines && req.Category != "" {
			items = filterByCategory(items, req.Category)
		}
		bundle.Counts[cs.name] = len(items)
		cs.assign(bundle, items)
	}

	return bundle, nil
}

// buildFilters records which metadata scopes a request applied, keyed by
// payload field.
func buildFilters(req Request) map[string]string {
	filters := map[string]string{}
	if req.Culture != "" {
		filters[FieldTargetCulture] = req.Culture
	}
	if req.PersonaID != "" {
		filters[FieldPersonaID] = req.PersonaID
	}
	if req.Category != "" {
		filters[FieldCategory] = req.Category
	}
	return filters
}

// buildSearches assembles the fan-out targets for one request. Metadata
// filters apply only when the request carries the corresponding scope.
func (o *Orchestrator) buildSearches(req Request) []collectionSearch {
	guidelines := collectionSearch{
		name: CollectionGuidelines,
		spec: SearchSpec{
			Limit:     o.cfg.Guidelines.Limit,
			Threshold: o.cfg.Guidelines.Threshold,
		},
		assign: func(b *Bundle, items []KnowledgeItem) { b.Guidelines = items },
	}

	bookSections := collectionSearch{
		name: CollectionBookSections,
		spec: SearchSpec{
			Limit:     o.cfg.BookSections.Limit,
			Threshold: o.cfg.BookSections.Threshold,
		},
		assign: func(b *Bundle, items []KnowledgeItem) { b.BookSections = items },
	}
	if req.Culture != "" {
		bookSections.spec.Filter = map[string]string{FieldTargetCulture: req.Culture}
	}

	negativeExamples := collectionSearch{
		name: CollectionNegativeExamples,
		spec: SearchSpec{
			Limit:     o.cfg.NegativeExamples.Limit,
			Threshold: o.cfg.NegativeExamples.Threshold,
		},
		assign: func(b *Bundle, items []KnowledgeItem) { b.NegativeExamples = items },
	}
	if req.PersonaID != "" {
		negativeExamples.spec.Filter = map[string]string{FieldPersonaID: req.PersonaID}
	}

	return []collectionSearch{guidelines, bookSections, negativeExamples}
}

// filterByCategory keeps items whose category metadata matches, preserving
// score order.
func filterByCategory(items []KnowledgeItem, category string) []KnowledgeItem {
	filtered := make([]KnowledgeItem, 0, len(items))
	for _, item := range items {
		if item.Metadata[FieldCategory] == category {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
