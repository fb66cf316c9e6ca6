package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req openaiEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Errorf("got %d inputs, want 2", len(req.Input))
		}
		// Return data out of order to exercise index-based reassembly.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.3, 0.4}, "index": 1},
				{"embedding": []float32{0.1, 0.2}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "text-embedding-ada-002"})
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
		t.Errorf("vectors not reordered by index: %v", vecs)
	}
}

func TestOpenAIEmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key"},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Model: "text-embedding-ada-002"})
	_, err := e.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Embed = %v, want ErrProvider", err)
	}
}

func TestCohereEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/embed" {
			t.Errorf("path = %q", got)
		}
		var req cohereEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.InputType != "search_query" {
			t.Errorf("input_type = %q, want search_query", req.InputType)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.5, 0.6}},
		})
	}))
	defer srv.Close()

	e := NewCohereEmbedder(&CohereConfig{BaseURL: srv.URL, APIKey: "test-key"})
	vecs, err := e.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 || vecs[0][1] != 0.6 {
		t.Errorf("vectors = %v", vecs)
	}
}

func TestVerifyDimensionsMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A 3-dimensional vector against a 1536 contract.
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	e := NewCohereEmbedder(&CohereConfig{BaseURL: srv.URL, APIKey: "test-key"})
	err := VerifyDimensions(context.Background(), e, 1536)

	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("VerifyDimensions = %v, want DimensionError", err)
	}
	if dimErr.Got != 3 || dimErr.Want != 1536 {
		t.Errorf("DimensionError = %+v", dimErr)
	}
}

func TestNewFromEnvMissingKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewFromEnv(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewFromEnv = %v, want ErrUnavailable", err)
	}
}

func TestNewFromEnvCohere(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "cohere")
	t.Setenv("COHERE_API_KEY", "ck-test")

	e, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if _, ok := e.(*CohereEmbedder); !ok {
		t.Errorf("got %T, want *CohereEmbedder", e)
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	for model, want := range map[string]bool{
		"gpt-4o":                 true,
		"llama3.2":               true,
		"text-embedding-ada-002": false,
		"embed-english-v3.0":     false,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
