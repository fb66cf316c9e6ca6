package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeEmbedder returns a fixed vector and counts Embed calls.
type fakeEmbedder struct {
	vector []float32
	err    error
	calls  atomic.Int64
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

// fakeStore serves canned results per collection and records the specs it saw.
type fakeStore struct {
	mu      sync.Mutex
	results map[string][]KnowledgeItem
	errs    map[string]error
	specs   map[string]SearchSpec
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results: map[string][]KnowledgeItem{},
		errs:    map[string]error{},
		specs:   map[string]SearchSpec{},
	}
}

func (f *fakeStore) Search(_ context.Context, collection string, _ []float32, spec SearchSpec) ([]KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[collection] = spec
	if err := f.errs[collection]; err != nil {
		return nil, err
	}
	return f.results[collection], nil
}

func (f *fakeStore) Upsert(context.Context, string, []KnowledgeItem, [][]float32) error {
	return nil
}
func (f *fakeStore) Delete(context.Context, string, []string) error { return nil }
func (f *fakeStore) Close() error                                   { return nil }

func (f *fakeStore) spec(t *testing.T, collection string) SearchSpec {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	spec, ok := f.specs[collection]
	if !ok {
		t.Fatalf("collection %q was not searched", collection)
	}
	return spec
}

func vectorOf(dim int) []float32 {
	return make([]float32, dim)
}

func newTestOrchestrator(t *testing.T, emb *fakeEmbedder, store *fakeStore) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(emb, store, OrchestratorConfig{Dimensions: 1536}, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestRetrieveSingleEmbedding(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()
	store.results[CollectionGuidelines] = []KnowledgeItem{{ID: "g1", Content: "be kind", Score: 0.9}}
	store.results[CollectionBookSections] = []KnowledgeItem{{ID: "b1", Content: "excerpt", Score: 0.7}}
	store.results[CollectionNegativeExamples] = []KnowledgeItem{{ID: "n1", Content: "avoid this", Score: 0.65}}

	o := newTestOrchestrator(t, emb, store)
	bundle, err := o.Retrieve(context.Background(), Request{Query: "how do I ask for a late checkout"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if got := emb.calls.Load(); got != 1 {
		t.Errorf("embedder called %d times, want 1", got)
	}
	if len(bundle.Guidelines) != 1 || len(bundle.BookSections) != 1 || len(bundle.NegativeExamples) != 1 {
		t.Errorf("bundle = %+v", bundle)
	}
	if len(bundle.Degraded) != 0 {
		t.Errorf("degraded = %v, want none", bundle.Degraded)
	}
}

func TestRetrieveFilters(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()

	o := newTestOrchestrator(t, emb, store)
	_, err := o.Retrieve(context.Background(), Request{
		Query:     "late checkout",
		Culture:   "Malay",
		PersonaID: "persona-7",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if got := store.spec(t, CollectionBookSections).Filter[FieldTargetCulture]; got != "Malay" {
		t.Errorf("book sections culture filter = %q, want Malay", got)
	}
	if got := store.spec(t, CollectionNegativeExamples).Filter[FieldPersonaID]; got != "persona-7" {
		t.Errorf("negative examples persona filter = %q, want persona-7", got)
	}
	if got := store.spec(t, CollectionGuidelines).Filter; got != nil {
		t.Errorf("guidelines filter = %v, want none", got)
	}
}

func TestRetrieveNoScopeNoFilter(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()

	o := newTestOrchestrator(t, emb, store)
	if _, err := o.Retrieve(context.Background(), Request{Query: "hello"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if got := store.spec(t, CollectionBookSections).Filter; got != nil {
		t.Errorf("book sections filter = %v, want none", got)
	}
	if got := store.spec(t, CollectionNegativeExamples).Filter; got != nil {
		t.Errorf("negative examples filter = %v, want none", got)
	}
}

func TestRetrieveDegradeIsolation(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()
	store.errs[CollectionBookSections] = errors.New("collection offline")
	store.results[CollectionGuidelines] = []KnowledgeItem{{ID: "g1", Content: "be kind", Score: 0.9}}

	o := newTestOrchestrator(t, emb, store)
	bundle, err := o.Retrieve(context.Background(), Request{Query: "hello"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(bundle.Guidelines) != 1 {
		t.Errorf("guidelines survived = %d items, want 1", len(bundle.Guidelines))
	}
	if len(bundle.BookSections) != 0 {
		t.Errorf("book sections = %d items, want 0", len(bundle.BookSections))
	}
	reason, ok := bundle.Degraded[CollectionBookSections]
	if !ok || !strings.Contains(reason, "collection offline") {
		t.Errorf("degraded = %v", bundle.Degraded)
	}
}

func TestRetrieveEmbeddingFailureFailsRound(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("provider down")}
	store := newFakeStore()

	o := newTestOrchestrator(t, emb, store)
	if _, err := o.Retrieve(context.Background(), Request{Query: "hello"}); err == nil {
		t.Fatal("Retrieve succeeded with a failed embedding")
	}
	if len(store.specs) != 0 {
		t.Errorf("store was searched despite embedding failure: %v", store.specs)
	}
}

func TestRetrieveDimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1024)}
	store := newFakeStore()

	o := newTestOrchestrator(t, emb, store)
	_, err := o.Retrieve(context.Background(), Request{Query: "hello"})
	if err == nil || !strings.Contains(err.Error(), "dimension") {
		t.Fatalf("Retrieve = %v, want dimension error", err)
	}
	if len(store.specs) != 0 {
		t.Errorf("store was searched despite dimension mismatch: %v", store.specs)
	}
}

func TestRetrieveCategoryPostFilter(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()
	store.results[CollectionGuidelines] = []KnowledgeItem{
		{ID: "g1", Content: "tone", Score: 0.9, Metadata: map[string]string{FieldCategory: "tone"}},
		{ID: "g2", Content: "structure", Score: 0.85, Metadata: map[string]string{FieldCategory: "structure"}},
		{ID: "g3", Content: "tone again", Score: 0.8, Metadata: map[string]string{FieldCategory: "tone"}},
	}

	o := newTestOrchestrator(t, emb, store)
	bundle, err := o.Retrieve(context.Background(), Request{Query: "hello", Category: "tone"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(bundle.Guidelines) != 2 {
		t.Fatalf("got %d guidelines, want 2", len(bundle.Guidelines))
	}
	if bundle.Guidelines[0].ID != "g1" || bundle.Guidelines[1].ID != "g3" {
		t.Errorf("score order not preserved: %v", bundle.Guidelines)
	}
}

func TestRetrieveBundleMetadata(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()
	store.results[CollectionGuidelines] = []KnowledgeItem{
		{ID: "g1", Content: "be kind", Score: 0.9, Metadata: map[string]string{FieldCategory: "tone"}},
		{ID: "g2", Content: "structure", Score: 0.8, Metadata: map[string]string{FieldCategory: "structure"}},
	}
	store.results[CollectionBookSections] = []KnowledgeItem{{ID: "b1", Content: "excerpt", Score: 0.7}}
	store.errs[CollectionNegativeExamples] = errors.New("collection offline")

	o := newTestOrchestrator(t, emb, store)
	bundle, err := o.Retrieve(context.Background(), Request{
		Query:     "late checkout",
		Culture:   "Malay",
		PersonaID: "persona-7",
		Category:  "tone",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if bundle.Query != "late checkout" {
		t.Errorf("query = %q", bundle.Query)
	}
	wantFilters := map[string]string{
		FieldTargetCulture: "Malay",
		FieldPersonaID:     "persona-7",
		FieldCategory:      "tone",
	}
	for field, want := range wantFilters {
		if got := bundle.Filters[field]; got != want {
			t.Errorf("filter %q = %q, want %q", field, got, want)
		}
	}
	// Counts reflect what each collection contributed after filtering;
	// the degraded collection counts zero.
	if got := bundle.Counts[CollectionGuidelines]; got != 1 {
		t.Errorf("guidelines count = %d, want 1", got)
	}
	if got := bundle.Counts[CollectionBookSections]; got != 1 {
		t.Errorf("book sections count = %d, want 1", got)
	}
	if got, ok := bundle.Counts[CollectionNegativeExamples]; !ok || got != 0 {
		t.Errorf("negative examples count = %d (present %t), want 0", got, ok)
	}
}

func TestRetrieveUnscopedBundleHasNoFilters(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()

	o := newTestOrchestrator(t, emb, store)
	bundle, err := o.Retrieve(context.Background(), Request{Query: "hello"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(bundle.Filters) != 0 {
		t.Errorf("filters = %v, want none", bundle.Filters)
	}
}

func TestRetrieveSpecsUseConfiguredTuning(t *testing.T) {
	emb := &fakeEmbedder{vector: vectorOf(1536)}
	store := newFakeStore()

	o, err := NewOrchestrator(emb, store, OrchestratorConfig{
		Guidelines: CollectionParams{Threshold: 0.8, Limit: 5},
		Dimensions: 1536,
	}, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if _, err := o.Retrieve(context.Background(), Request{Query: "hello"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	got := store.spec(t, CollectionGuidelines)
	if got.Threshold != 0.8 || got.Limit != 5 {
		t.Errorf("guidelines spec = %+v", got)
	}
	// Unset collections fall back to defaults.
	book := store.spec(t, CollectionBookSections)
	if book.Threshold != DefaultOrchestratorConfig.BookSections.Threshold {
		t.Errorf("book sections threshold = %v", book.Threshold)
	}
}
