package ingestion

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/adab-ai/adab-go/internal/rag"
)

// record is one line of a knowledge JSONL file. Only Content is required;
// the remaining fields apply per collection and become payload metadata.
type record struct {
	// ID is the optional stable identifier, a UUID when set. When empty a
	// deterministic ID is derived from the collection and content.
	ID string `json:"id,omitempty"`
	// Content is the text to embed and store.
	Content string `json:"content"`
	// Category classifies a guideline (communication, motivation, ...).
	Category string `json:"category,omitempty"`
	// TargetCulture tags a book section with its cultural audience.
	TargetCulture string `json:"target_culture,omitempty"`
	// PersonaID scopes a negative example to one persona.
	PersonaID string `json:"persona_id,omitempty"`
	// BookTitle, Author, and Chapter attribute a book section to its source.
	BookTitle string `json:"book_title,omitempty"`
	Author    string `json:"author,omitempty"`
	Chapter   string `json:"chapter,omitempty"`
}

// canonicalCultures maps lowercase culture labels to their stored form so
// that hand-edited JSONL files with inconsistent casing still filter
// correctly at retrieval time.
var canonicalCultures = map[string]string{
	"malay":             "Malay",
	"malaysian chinese": "Malaysian Chinese",
	"malaysian indian":  "Malaysian Indian",
	"swedish":           "Swedish",
	"general":           rag.GeneralCulture,
}

// validate checks the record against the target collection's requirements.
func (r *record) validate(collection string) error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content must not be empty")
	}
	switch collection {
	case rag.CollectionGuidelines:
		if strings.TrimSpace(r.Category) == "" {
			return fmt.Errorf("guidelines require a category")
		}
	case rag.CollectionBookSections:
		if strings.TrimSpace(r.TargetCulture) == "" {
			return fmt.Errorf("book sections require a target_culture")
		}
	case rag.CollectionNegativeExamples:
		if strings.TrimSpace(r.PersonaID) == "" {
			return fmt.Errorf("negative examples require a persona_id")
		}
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

// toItem converts the record into a store item for the given collection.
// Empty metadata fields are omitted from the payload.
func (r *record) toItem(collection string) rag.KnowledgeItem {
	meta := make(map[string]string)
	put := func(key, val string) {
		if v := strings.TrimSpace(val); v != "" {
			meta[key] = v
		}
	}
	put(rag.FieldCategory, r.Category)
	put(rag.FieldTargetCulture, canonicalCulture(r.TargetCulture))
	put(rag.FieldPersonaID, r.PersonaID)
	put("book_title", r.BookTitle)
	put("author", r.Author)
	put("chapter", r.Chapter)

	id := r.ID
	if id == "" {
		id = recordID(collection, r.Content)
	}

	return rag.KnowledgeItem{
		ID:       id,
		Content:  strings.TrimSpace(r.Content),
		Metadata: meta,
	}
}

// canonicalCulture normalises a culture label's casing. Unknown labels pass
// through unchanged so new cultures can be ingested without a code change.
func canonicalCulture(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := canonicalCultures[key]; ok {
		return canonical
	}
	return strings.TrimSpace(s)
}

// recordID derives a deterministic ID from the collection and content so
// re-running an ingest updates rather than duplicates. The digest is shaped
// as a UUID because Qdrant only accepts UUID or integer point IDs.
func recordID(collection, content string) string {
	h := sha256.Sum256([]byte(collection + "\x00" + strings.TrimSpace(content)))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
