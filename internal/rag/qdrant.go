package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys holding the document body and origin.
const (
	payloadContent = "content"
	payloadSource  = "source"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "studyai"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Filtering
// runs server-side on keyword-indexed payload fields; MMR re-ranking runs
// client-side over the FetchK nearest points.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// and its payload indexes exist, and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
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
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the collection and its keyword payload indexes
// if they do not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	if s.cfg.VectorSize == 0 {
		return fmt.Errorf("qdrant: vector size is required to create collection %q", s.cfg.Collection)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	for _, field := range []string{MetaSession, MetaSource} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}

	return nil
}

// Upsert stores or replaces a batch of documents with their embeddings.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]any{
			payloadContent: doc.Content,
			payloadSource:  doc.Source,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Exists reports whether any point matches f.
func (s *QdrantStore) Exists(ctx context.Context, f Filter) (bool, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         qdrantFilter(&f),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n > 0, nil
}

// SearchMMR fetches the FetchK nearest points with their vectors and
// re-ranks them by maximal marginal relevance.
func (s *QdrantStore) SearchMMR(ctx context.Context, req SearchRequest) ([]Document, error) {
	fetchK := uint64(max(req.FetchK, req.K))
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Filter:         qdrantFilter(req.Filter),
		Limit:          &fetchK,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	cands := make([]Candidate, 0, len(results))
	for _, r := range results {
		cands = append(cands, Candidate{
			Doc:    documentFromPayload(r.GetId().GetUuid(), r.GetPayload()),
			Vector: denseVector(r.GetVectors()),
		})
	}
	return SelectMMR(req.Vector, cands, req.K, req.Lambda), nil
}

// Ping checks that the Qdrant server is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close() //nolint:wrapcheck // passthrough
}

// qdrantFilter converts f to a Qdrant filter, returning nil when f
// constrains nothing.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || f.IsZero() {
		return nil
	}
	var must []*qdrant.Condition
	if f.Session != "" {
		must = append(must, qdrant.NewMatch(MetaSession, f.Session))
	}
	if f.Source != "" {
		must = append(must, qdrant.NewMatch(MetaSource, f.Source))
	}
	return &qdrant.Filter{Must: must}
}

// documentFromPayload rebuilds a Document from a point payload.
func documentFromPayload(id string, p map[string]*qdrant.Value) Document {
	doc := Document{ID: id, Metadata: make(map[string]string, len(p))}
	for k, v := range p {
		switch k {
		case payloadContent:
			doc.Content = v.GetStringValue()
		case payloadSource:
			doc.Source = v.GetStringValue()
			doc.Metadata[k] = doc.Source
		default:
			doc.Metadata[k] = v.GetStringValue()
		}
	}
	return doc
}

// denseVector extracts the unnamed dense vector from a point's vectors.
func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if d := out.GetDense(); d != nil {
		return d.GetData()
	}
	return out.GetData() //nolint:staticcheck // SA1019: older servers only populate the deprecated field
}
