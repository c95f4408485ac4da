// Package vector provides the vector store adapter: a Qdrant-backed store and an in-memory store
// with identical semantics.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/medsage/internal/models"
)

// ErrCollectionNotFound is returned when an operation targets a collection that does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
)

// ParseDistance maps a config value to a Distance. Empty means cosine.
func ParseDistance(s string) (Distance, error) {
	switch Distance(strings.ToLower(s)) {
	case DistanceCosine, "":
		return DistanceCosine, nil
	case DistanceDot:
		return DistanceDot, nil
	default:
		return "", fmt.Errorf("unknown distance: %s (supported: cosine, dot)", s)
	}
}

// Condition is an exact keyword match on a payload field.
type Condition struct {
	Field string
	Value string
}

// Filter narrows search candidates. All conditions must match.
type Filter struct {
	Must []Condition
}

// Matches reports whether p satisfies every condition.
func (f *Filter) Matches(p *models.Payload) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		v, ok := p.Field(c.Field)
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

// FieldEquals returns a filter with a single exact-match condition.
func FieldEquals(field, value string) *Filter {
	return &Filter{Must: []Condition{{Field: field, Value: value}}}
}

// SearchOptions controls a top-k query.
type SearchOptions struct {
	Limit  int
	Filter *Filter
	// HNSWEf sets the search-time beam width; zero uses the store default.
	HNSWEf uint64
	Exact  bool
}

// Store is the vector store adapter. Every call round-trips to the backing store.
type Store interface {
	// EnsureCollection creates the collection if it does not exist. Idempotent.
	EnsureCollection(ctx context.Context, name string, dim int, distance Distance) error
	// Upsert inserts or overwrites records by ID. The batch either succeeds or returns an error.
	Upsert(ctx context.Context, name string, records []models.IndexRecord) error
	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, name string, ids []string) error
	// Search returns up to opts.Limit hits ordered by descending score.
	Search(ctx context.Context, name string, query []float32, opts SearchOptions) ([]models.RetrievalHit, error)
	// Clear drops and recreates the collection with the same dimension and distance.
	Clear(ctx context.Context, name string) error
	Count(ctx context.Context, name string) (uint64, error)
	Type() string
	Close() error
}

// FieldIndexer is implemented by stores that support payload indexes.
type FieldIndexer interface {
	CreateKeywordIndex(ctx context.Context, collection, field string) error
}

// Persister is implemented by stores that keep their data in a local file.
type Persister interface {
	Save(path string) error
	Load(path string) error
}

// Persist saves s to path when it keeps local data. Remote stores and an empty path are no-ops.
func Persist(s Store, path string) error {
	p, ok := s.(Persister)
	if !ok || path == "" {
		return nil
	}
	return p.Save(path)
}

// collectionParams remembers how a collection was created so Clear can recreate it.
type collectionParams struct {
	dim      int
	distance Distance
}
