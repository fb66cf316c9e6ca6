package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant instance hosting the
// knowledge collections.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of the embeddings stored in every
	// collection. All collections share one embedding space.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements SearchStore backed by a Qdrant instance. One store
// serves all knowledge collections.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring every knowledge
// collection exists (creating missing ones), and returns a ready-to-use
// SearchStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	for _, name := range []string{CollectionGuidelines, CollectionBookSections, CollectionNegativeExamples} {
		if err := store.ensureCollection(ctx, name); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// ensureCollection creates a Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}

	return nil
}

// Upsert stores or updates a batch of items with their embeddings.
// embeddings[i] is the vector for items[i].
func (s *QdrantStore) Upsert(ctx context.Context, collection string, items []KnowledgeItem, embeddings [][]float32) error {
	if len(items) != len(embeddings) {
		return fmt.Errorf("qdrant: %d items but %d embeddings", len(items), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(items))
	for i, item := range items {
		payload := map[string]interface{}{
			"content": item.Content,
		}
		for k, v := range item.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(item.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", collection, err)
	}

	return nil
}

// Search performs a cosine similarity search in one collection. The score
// threshold and payload filter are applied server-side.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryEmbedding []float32, spec SearchSpec) ([]KnowledgeItem, error) {
	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(spec.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         matchFilter(spec.Filter),
	}
	if spec.Threshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(spec.Threshold)
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", collection, err)
	}

	items := make([]KnowledgeItem, 0, len(results))
	for _, r := range results {
		item := KnowledgeItem{
			ID:       r.Id.GetUuid(),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				item.Content = v.GetStringValue()
			}
			for k, v := range p {
				if k != "content" {
					item.Metadata[k] = v.GetStringValue()
				}
			}
		}
		items = append(items, item)
	}

	return items, nil
}

// Delete removes items from a collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete from %q failed: %w", collection, err)
	}

	return nil
}

// HealthCheck verifies the Qdrant instance is reachable.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// matchFilter converts a key-value map into a Qdrant must-match filter.
// Returns nil when the map is empty so unfiltered searches send no filter.
func matchFilter(kv map[string]string) *qdrant.Filter {
	if len(kv) == 0 {
		return nil
	}

	must := make([]*qdrant.Condition, 0, len(kv))
	for k, v := range kv {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: k,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: v},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}
