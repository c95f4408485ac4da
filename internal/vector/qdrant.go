package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/medsage/internal/models"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TypeQdrant identifies the Qdrant-backed store.
const TypeQdrant = "qdrant"

// QdrantOptions configures the gRPC connection to a Qdrant server.
type QdrantOptions struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantStore is a Store backed by a Qdrant server. It holds no local state besides the
// parameters needed to recreate collections on Clear.
type QdrantStore struct {
	client *qdrant.Client
	logger *zap.Logger
	params map[string]collectionParams
	mu     sync.Mutex
}

// NewQdrantStore connects to Qdrant. The connection is established lazily by the client.
func NewQdrantStore(opts QdrantOptions, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s:%d: %w", opts.Host, opts.Port, err)
	}
	return &QdrantStore{
		client: client,
		logger: logger,
		params: make(map[string]collectionParams),
	}, nil
}

// Type returns the store type identifier.
func (q *QdrantStore) Type() string {
	return TypeQdrant
}

// EnsureCollection reads the collection and creates it only when the read reports NotFound.
// Any other read error is returned unchanged.
func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int, distance Distance) error {
	if dim <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	q.remember(name, collectionParams{dim: dim, distance: distance})
	_, err := q.client.GetCollectionInfo(ctx, name)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("get collection %s: %w", name, err)
	}
	q.logger.Info("creating collection", zap.String("collection", name), zap.Int("dimensions", dim))
	return q.create(ctx, name, collectionParams{dim: dim, distance: distance})
}

// CreateKeywordIndex adds a keyword payload index on field.
func (q *QdrantStore) CreateKeywordIndex(ctx context.Context, collection, field string) error {
	_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
	})
	if err != nil {
		return fmt.Errorf("create index %s.%s: %w", collection, field, err)
	}
	return nil
}

// Upsert writes records and waits for the server to apply them.
func (q *QdrantStore) Upsert(ctx context.Context, name string, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payloadToValues(r.Payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), name, err)
	}
	return nil
}

// Delete removes points by ID.
func (q *QdrantStore) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(pointIDs),
	})
	if err != nil {
		return fmt.Errorf("delete %d points from %s: %w", len(ids), name, err)
	}
	return nil
}

// Search runs a nearest-neighbour query with an optional payload filter.
func (q *QdrantStore) Search(ctx context.Context, name string, query []float32, opts SearchOptions) ([]models.RetrievalHit, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}
	req := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(opts.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.Filter != nil && len(opts.Filter.Must) > 0 {
		must := make([]*qdrant.Condition, 0, len(opts.Filter.Must))
		for _, c := range opts.Filter.Must {
			must = append(must, qdrant.NewMatch(c.Field, c.Value))
		}
		req.Filter = &qdrant.Filter{Must: must}
	}
	if opts.HNSWEf > 0 || opts.Exact {
		params := &qdrant.SearchParams{}
		if opts.HNSWEf > 0 {
			params.HnswEf = qdrant.PtrOf(opts.HNSWEf)
		}
		if opts.Exact {
			params.Exact = qdrant.PtrOf(true)
		}
		req.Params = params
	}
	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	hits := make([]models.RetrievalHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, models.RetrievalHit{
			ID:      pointIDString(p.GetId()),
			Score:   float64(p.GetScore()),
			Payload: valuesToPayload(p.GetPayload()),
		})
	}
	return hits, nil
}

// Clear deletes and recreates the collection. Parameters come from the live collection when it
// exists, otherwise from the last EnsureCollection call.
func (q *QdrantStore) Clear(ctx context.Context, name string) error {
	p, err := q.liveParams(ctx, name)
	if err != nil {
		return err
	}
	if err := q.client.DeleteCollection(ctx, name); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	q.logger.Info("recreating collection", zap.String("collection", name), zap.Int("dimensions", p.dim))
	return q.create(ctx, name, p)
}

// Count returns the exact number of points in the collection.
func (q *QdrantStore) Count(ctx context.Context, name string) (uint64, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("count %s: %w", name, ErrCollectionNotFound)
		}
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Close releases the gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

func (q *QdrantStore) create(ctx context.Context, name string, p collectionParams) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(p.dim),
			Distance: toQdrantDistance(p.distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (q *QdrantStore) remember(name string, p collectionParams) {
	q.mu.Lock()
	q.params[name] = p
	q.mu.Unlock()
}

func (q *QdrantStore) liveParams(ctx context.Context, name string) (collectionParams, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err == nil {
		vp := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if vp != nil && vp.GetSize() > 0 {
			return collectionParams{dim: int(vp.GetSize()), distance: fromQdrantDistance(vp.GetDistance())}, nil
		}
	} else if !isNotFound(err) {
		return collectionParams{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	q.mu.Lock()
	p, ok := q.params[name]
	q.mu.Unlock()
	if !ok {
		return collectionParams{}, fmt.Errorf("clear %s: %w", name, ErrCollectionNotFound)
	}
	return p, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.NotFound {
		return true
	}
	var st interface{ GRPCStatus() *status.Status }
	if errors.As(err, &st) {
		return st.GRPCStatus().Code() == codes.NotFound
	}
	return false
}

func toQdrantDistance(d Distance) qdrant.Distance {
	if d == DistanceDot {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Cosine
}

func fromQdrantDistance(d qdrant.Distance) Distance {
	if d == qdrant.Distance_Dot {
		return DistanceDot
	}
	return DistanceCosine
}
