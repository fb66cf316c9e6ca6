package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adab-ai/adab-go/internal/embedder"
	"github.com/adab-ai/adab-go/internal/keystore"
	"github.com/adab-ai/adab-go/internal/rag"
)

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if it is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the named environment variable parsed as an int, or
// fallback if it is unset or unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat32 returns the named environment variable parsed as a float32,
// or fallback if it is unset or unparsable.
func getEnvFloat32(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}

// embeddingBackend resolves the configured embedding backend name.
// EMBEDDING_PROVIDER wins over MODEL_PROVIDER; openai is the default.
func embeddingBackend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "openai"))
}

// openSearchStore connects to Qdrant using the QDRANT_* environment and
// provisions the knowledge collections for the configured embedding size.
func openSearchStore(ctx context.Context) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		VectorSize: uint64(embedder.DefaultDimensions(embeddingBackend())),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return store, nil
}

// openKeystore opens the SQLite keystore. ADAB_DB overrides the default
// path (~/.adab/adab.db).
func openKeystore() (*keystore.Store, error) {
	path := os.Getenv("ADAB_DB")
	if path == "" {
		var err error
		path, err = keystore.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve keystore path: %w", err)
		}
	}
	store, err := keystore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore at %s: %w", path, err)
	}
	return store, nil
}

// retrievalConfig builds the orchestrator tuning from the RETRIEVAL_*
// environment. Unset values fall back to the orchestrator defaults.
func retrievalConfig() rag.OrchestratorConfig {
	return rag.OrchestratorConfig{
		Guidelines: rag.CollectionParams{
			Threshold: getEnvFloat32("RETRIEVAL_GUIDELINES_THRESHOLD", 0),
			Limit:     getEnvInt("RETRIEVAL_GUIDELINES_LIMIT", 0),
		},
		BookSections: rag.CollectionParams{
			Threshold: getEnvFloat32("RETRIEVAL_BOOK_SECTIONS_THRESHOLD", 0),
			Limit:     getEnvInt("RETRIEVAL_BOOK_SECTIONS_LIMIT", 0),
		},
		NegativeExamples: rag.CollectionParams{
			Threshold: getEnvFloat32("RETRIEVAL_NEGATIVE_EXAMPLES_THRESHOLD", 0),
			Limit:     getEnvInt("RETRIEVAL_NEGATIVE_EXAMPLES_LIMIT", 0),
		},
		SearchTimeout: time.Duration(getEnvInt("RETRIEVAL_SEARCH_TIMEOUT", 0)) * time.Second,
		Dimensions:    embedder.DefaultDimensions(embeddingBackend()),
	}
}
