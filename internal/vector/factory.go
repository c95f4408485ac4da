package vector

import (
	"fmt"

	"github.com/hyperjump/medsage/internal/config"
	"go.uber.org/zap"
)

// NewStore creates a vector store of the configured type.
// Supported types: "qdrant" (default), "memory". The memory store loads its snapshot from
// snapshotPath when one exists.
func NewStore(cfg *config.VectorStoreConfig, snapshotPath string, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case TypeQdrant, "":
		return NewQdrantStore(QdrantOptions{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey(),
			UseTLS: cfg.Qdrant.UseTLS,
		}, logger)
	case TypeMemory:
		m := NewMemoryStore()
		if err := m.Load(snapshotPath); err != nil {
			return nil, fmt.Errorf("load vector snapshot: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: qdrant, memory)", cfg.Type)
	}
}
