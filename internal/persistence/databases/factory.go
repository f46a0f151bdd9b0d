package databases

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intelligencedev/ragserver/internal/config"
)

// NewManager constructs the search and vector backends for one KB's chunk
// table, chosen by cfg.Vector.Backend ("pgvector" default, or "qdrant").
// table is the KB's sanitized per-KB identifier; for qdrant it doubles as
// the collection name.
func NewManager(ctx context.Context, pool *pgxpool.Pool, cfg config.VectorConfig, table string, dimensions int) (Manager, error) {
	switch cfg.Backend {
	case "", "pgvector":
		vec, err := NewPostgresVector(ctx, pool, table, dimensions, cfg.Metric)
		if err != nil {
			return Manager{}, fmt.Errorf("init pgvector store: %w", err)
		}
		search, err := NewPostgresSearch(ctx, pool, table)
		if err != nil {
			return Manager{}, fmt.Errorf("init postgres fts: %w", err)
		}
		return Manager{Search: search, Vector: vec}, nil
	case "qdrant":
		vec, err := NewQdrantVector(cfg.QdrantDSN, table, dimensions, cfg.Metric)
		if err != nil {
			return Manager{}, fmt.Errorf("init qdrant store: %w", err)
		}
		// Qdrant is vector-only; lexical search for hybrid retrieval still
		// rides on the same Postgres pool's per-KB table.
		search, err := NewPostgresSearch(ctx, pool, table)
		if err != nil {
			return Manager{}, fmt.Errorf("init postgres fts: %w", err)
		}
		return Manager{Search: search, Vector: vec}, nil
	default:
		return Manager{}, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}
