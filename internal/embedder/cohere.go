package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CohereEmbedder implements rag.Embedder using the Cohere embed REST API.
// It is safe for concurrent use.
//
// Cohere embedding models produce vectors of a different length than the
// OpenAI family (embed-english-v3.0 is 1024-dimensional), so a store
// provisioned for OpenAI vectors cannot be queried with Cohere embeddings.
// VerifyDimensions catches the mismatch at startup.
type CohereEmbedder struct {
	// baseURL is the API base (e.g. "https://api.cohere.com/v1").
	baseURL string
	// apiKey is the Bearer token.
	apiKey string
	// model is the embedding model name (e.g. "embed-english-v3.0").
	model string
	// inputType tells the model whether texts are queries or documents.
	inputType string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// CohereConfig holds the settings for constructing a CohereEmbedder.
type CohereConfig struct {
	// BaseURL is the API base URL. Defaults to "https://api.cohere.com/v1".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name. Defaults to "embed-english-v3.0".
	Model string
	// InputType is the Cohere input_type hint: "search_query" for retrieval
	// queries, "search_document" for ingestion. Defaults to "search_query".
	InputType string
}

// NewCohereEmbedder constructs a CohereEmbedder from the given config.
func NewCohereEmbedder(cfg *CohereConfig) *CohereEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = defaultCohereModel
	}
	inputType := cfg.InputType
	if inputType == "" {
		inputType = "search_query"
	}
	return &CohereEmbedder{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     model,
		inputType: inputType,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// cohereEmbedRequest is the JSON body sent to the embed endpoint.
type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
	Truncate  string   `json:"truncate,omitempty"`
}

// cohereEmbedResponse is the JSON body returned from the embed endpoint.
type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *CohereEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := cohereEmbedRequest{
		Texts:     texts,
		Model:     e.model,
		InputType: e.inputType,
		Truncate:  "END",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("cohere embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cohere embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere embedder: %w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	var result cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("cohere embedder: %w: decode response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Message != "" {
			msg = result.Message
		}
		return nil, fmt.Errorf("cohere embedder: %w: %s", ErrProvider, msg)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("cohere embedder: %w: expected %d embeddings, got %d", ErrProvider, len(texts), len(result.Embeddings))
	}

	return result.Embeddings, nil
}
