package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/pkg/utils"
)

// TypeMemory identifies the in-memory store.
const TypeMemory = "memory"

type memCollection struct {
	params   collectionParams
	ids      []string
	vectors  [][]float32
	payloads []models.Payload
	index    map[string]int
}

func newMemCollection(p collectionParams) *memCollection {
	return &memCollection{params: p, index: make(map[string]int)}
}

// MemoryStore is an in-memory vector store using brute-force search.
// Cosine collections store L2-normalized copies so scores are cosine similarities in [-1, 1].
type MemoryStore struct {
	collections map[string]*memCollection
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// Type returns the store type identifier.
func (m *MemoryStore) Type() string {
	return TypeMemory
}

// EnsureCollection creates the collection when absent.
func (m *MemoryStore) EnsureCollection(ctx context.Context, name string, dim int, distance Distance) error {
	if dim <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return nil
	}
	m.collections[name] = newMemCollection(collectionParams{dim: dim, distance: distance})
	return nil
}

// Upsert validates every record before storing any of them.
func (m *MemoryStore) Upsert(ctx context.Context, name string, records []models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("upsert into %s: %w", name, ErrCollectionNotFound)
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("upsert into %s: record without id", name)
		}
		if len(r.Vector) != c.params.dim {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Vector), c.params.dim)
		}
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if c.params.distance == DistanceCosine {
			utils.NormalizeL2(vec)
		}
		if i, exists := c.index[r.ID]; exists {
			c.vectors[i] = vec
			c.payloads[i] = r.Payload
			continue
		}
		c.index[r.ID] = len(c.ids)
		c.ids = append(c.ids, r.ID)
		c.vectors = append(c.vectors, vec)
		c.payloads = append(c.payloads, r.Payload)
	}
	return nil
}

// Delete removes the given IDs, compacting the collection.
func (m *MemoryStore) Delete(ctx context.Context, name string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("delete from %s: %w", name, ErrCollectionNotFound)
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, exists := c.index[id]; exists {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	next := newMemCollection(c.params)
	for i, id := range c.ids {
		if drop[id] {
			continue
		}
		next.index[id] = len(next.ids)
		next.ids = append(next.ids, id)
		next.vectors = append(next.vectors, c.vectors[i])
		next.payloads = append(next.payloads, c.payloads[i])
	}
	m.collections[name] = next
	return nil
}

// Search scores every record that passes the filter and returns the top opts.Limit.
func (m *MemoryStore) Search(ctx context.Context, name string, query []float32, opts SearchOptions) ([]models.RetrievalHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("search %s: %w", name, ErrCollectionNotFound)
	}
	if len(query) != c.params.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.params.dim)
	}
	if opts.Limit <= 0 || len(c.ids) == 0 {
		return nil, nil
	}
	q := query
	if c.params.distance == DistanceCosine {
		q = make([]float32, len(query))
		copy(q, query)
		utils.NormalizeL2(q)
	}
	hits := make([]models.RetrievalHit, 0, len(c.ids))
	for i, vec := range c.vectors {
		if !opts.Filter.Matches(&c.payloads[i]) {
			continue
		}
		hits = append(hits, models.RetrievalHit{
			ID:      c.ids[i],
			Score:   Dot(q, vec),
			Payload: c.payloads[i],
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// Clear discards all records, keeping the collection's dimension and distance.
func (m *MemoryStore) Clear(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("clear %s: %w", name, ErrCollectionNotFound)
	}
	m.collections[name] = newMemCollection(c.params)
	return nil
}

// Count returns the number of records in the collection.
func (m *MemoryStore) Count(ctx context.Context, name string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("count %s: %w", name, ErrCollectionNotFound)
	}
	return uint64(len(c.ids)), nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

// Save persists all collections to path. Directory is created if needed.
// Format: collection count (4), then per collection: name, distance, dimension (4), record count (4),
// then per record: id, payload JSON, vector (dimension*4 bytes). Strings are length-prefixed (4).
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	// The snapshot replaces path only once it is fully on disk.
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	werr := m.writeSnapshot(f)
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("close index file: %w", cerr)
	}
	if werr != nil {
		os.Remove(tmp)
		return werr
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func (m *MemoryStore) writeSnapshot(out io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := bufio.NewWriter(out)
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return fmt.Errorf("write collection count: %w", err)
	}
	for _, name := range names {
		c := m.collections[name]
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeString(w, string(c.params.distance)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(c.params.dim)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(c.ids))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for i, id := range c.ids {
			if err := writeString(w, id); err != nil {
				return err
			}
			payload, err := json.Marshal(c.payloads[i])
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			if err := writeString(w, string(payload)); err != nil {
				return err
			}
			if _, err := w.Write(float32SliceToBytes(c.vectors[i])); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return w.Flush()
}

// Load replaces the in-memory contents with the snapshot at path.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read collection count: %w", err)
	}
	loaded := make(map[string]*memCollection, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return err
		}
		distance, err := readString(r)
		if err != nil {
			return err
		}
		var dim, count uint32
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return fmt.Errorf("read dimensions: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return fmt.Errorf("read count: %w", err)
		}
		c := newMemCollection(collectionParams{dim: int(dim), distance: Distance(distance)})
		buf := make([]byte, int(dim)*4)
		for j := uint32(0); j < count; j++ {
			id, err := readString(r)
			if err != nil {
				return err
			}
			raw, err := readString(r)
			if err != nil {
				return err
			}
			var p models.Payload
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return fmt.Errorf("unmarshal payload: %w", err)
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			c.index[id] = len(c.ids)
			c.ids = append(c.ids, id)
			c.payloads = append(c.payloads, p)
			c.vectors = append(c.vectors, bytesToFloat32Slice(buf))
		}
		loaded[name] = c
	}
	m.mu.Lock()
	m.collections = loaded
	m.mu.Unlock()
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read length: %w", err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
