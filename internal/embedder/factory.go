package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/adab-ai/adab-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultCohereModel = "embed-english-v3.0"

	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small,
	// and the dimension the similarity store is provisioned for.
	defaultOpenAIDimensions = 1536
	// cohereDimensions is the output dimension of embed-english-v3.0.
	cohereDimensions = 1024
)

// DefaultDimensions returns the expected embedding vector size for the given
// backend name. Callers that pre-configure a vector store (e.g. Qdrant
// collection creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "cohere":
		return cohereDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder from the environment. OpenAI is the
// primary backend; Cohere is an explicit alternative, never an automatic
// fallback — the two vector spaces are not interchangeable, and a store
// provisioned for one cannot be queried with the other.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER — openai (default), cohere, or azure
//  2. EMBEDDING_API_KEY — overrides the backend's own key env var
//  3. EMBEDDING_MODEL — overrides the default model for the resolved backend
//  4. EMBEDDING_ENDPOINT — overrides the default API endpoint
//  5. EMBEDDING_DIMENSIONS — overrides the default dimensions (openai: 1536, cohere: 1024)
//
// Returns ErrUnavailable when the resolved backend has no API key.
func NewFromEnv() (rag.Embedder, error) {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")

	switch backend {
	case "openai":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY", ErrUnavailable)
		}
		baseURL := getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1")
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "cohere":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("COHERE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: cohere requires COHERE_API_KEY or EMBEDDING_API_KEY", ErrUnavailable)
		}
		return NewCohereEmbedder(&CohereConfig{
			BaseURL: getEnv("EMBEDDING_ENDPOINT"),
			APIKey:  apiKey,
			Model:   getEnvOrDefault("EMBEDDING_MODEL", defaultCohereModel),
		}), nil

	case "azure":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY", ErrUnavailable)
		}
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("%w: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT", ErrUnavailable)
		}
		apiVersion := getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: openai, cohere, azure", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
