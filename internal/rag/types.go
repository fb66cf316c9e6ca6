// Package rag implements retrieval-augmented context assembly: embedding,
// vector search across the knowledge collections, and the orchestrator that
// fans a single query embedding out to all of them in parallel. Concrete
// backends (Qdrant, OpenAI/Cohere embedders) satisfy the interfaces here so
// the chat layer never depends on a specific vendor.
package rag

import (
	"context"
)

// Knowledge collection names. Every retrieval round searches all three.
const (
	// CollectionGuidelines holds curated coaching guidelines.
	CollectionGuidelines = "guidelines"
	// CollectionBookSections holds book excerpts tagged with a target culture.
	CollectionBookSections = "book_sections"
	// CollectionNegativeExamples holds per-persona responses to avoid.
	CollectionNegativeExamples = "negative_examples"
)

// Payload field names used for metadata filtering.
const (
	// FieldTargetCulture scopes book sections to a cultural audience.
	FieldTargetCulture = "target_culture"
	// FieldPersonaID scopes negative examples to one persona.
	FieldPersonaID = "persona_id"
	// FieldCategory classifies guidelines; filtered client-side after search.
	FieldCategory = "category"
)

// KnowledgeItem is a unit of retrieved or stored knowledge.
type KnowledgeItem struct {
	// ID is the unique identifier for this item.
	ID string

	// Content is the raw text content.
	Content string

	// Metadata holds arbitrary key-value pairs (category, target_culture,
	// persona_id, book title, author, chapter, ...).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// SearchSpec parameterises one collection search.
type SearchSpec struct {
	// Limit is the maximum number of results to return.
	Limit int

	// Threshold is the minimum similarity score. Results below it are
	// excluded by the store, not post-filtered.
	Threshold float32

	// Filter restricts results to points whose payload matches every
	// key-value pair. Nil or empty means no filtering.
	Filter map[string]string
}

// SearchStore is the interface for persisting and searching knowledge
// embeddings across named collections.
// Implementations must be safe to call from multiple goroutines.
type SearchStore interface {
	// Upsert stores or updates a batch of items with their pre-computed
	// embeddings. embeddings[i] is the vector for items[i].
	Upsert(ctx context.Context, collection string, items []KnowledgeItem, embeddings [][]float32) error

	// Search performs a similarity search in one collection.
	Search(ctx context.Context, collection string, queryEmbedding []float32, spec SearchSpec) ([]KnowledgeItem, error)

	// Delete removes items from a collection by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Request describes one retrieval round.
type Request struct {
	// Query is the user's message text, embedded once and searched everywhere.
	Query string

	// Culture scopes book sections to a cultural audience. Empty means no
	// culture filter.
	Culture string

	// PersonaID scopes negative examples to the requesting persona.
	// Empty means no persona filter.
	PersonaID string

	// Category restricts guidelines to one category after search.
	// Empty means all categories.
	Category string
}

// Bundle is the merged result of one retrieval round. Collections that
// failed are empty and listed in Degraded — a partial bundle is still
// usable for prompt assembly.
type Bundle struct {
	// Query is the text that was embedded and searched this round.
	Query string

	// Filters are the metadata filters the round applied, keyed by payload
	// field (target_culture, persona_id, category). Empty when the round
	// ran unscoped.
	Filters map[string]string

	// Counts maps each collection name to the number of items it
	// contributed after filtering. Degraded collections count zero.
	Counts map[string]int

	// Guidelines are the matched coaching guidelines, highest score first.
	Guidelines []KnowledgeItem

	// BookSections are the matched book excerpts, highest score first.
	BookSections []KnowledgeItem

	// NegativeExamples are the matched responses to avoid, highest score first.
	NegativeExamples []KnowledgeItem

	// Degraded maps a collection name to the reason its search failed.
	// Empty when every collection answered.
	Degraded map[string]string
}

// Empty reports whether the bundle contains no knowledge at all.
func (b *Bundle) Empty() bool {
	return len(b.Guidelines) == 0 && len(b.BookSections) == 0 && len(b.NegativeExamples) == 0
}
