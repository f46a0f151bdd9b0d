package databases

import (
	"context"
	"time"
)

// SearchResult represents a single hit from the full-text search backend.
type SearchResult struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FullTextSearch defines the minimum interface for a pluggable FTS backend,
// scoped to a single KB's chunk table.
type FullTextSearch interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // backend similarity, higher is closer; not rescaled to [0,1] (cosine scores range over [-1,1])
	Metadata map[string]string
}

// DocSummary describes one source document as tracked by a vector store,
// derived from the "filename" metadata key carried on each of its chunks.
type DocSummary struct {
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

// Stats summarizes the current contents of a KB's vector store.
type Stats struct {
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// VectorStore defines the minimum interface for a pluggable vector store,
// scoped to a single KB's chunk table.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)

	// ListDocuments groups stored chunks by their "filename" metadata,
	// reporting how many chunks back each document.
	ListDocuments(ctx context.Context) ([]DocSummary, error)
	// DeleteByFilename removes every chunk whose "filename" metadata matches.
	DeleteByFilename(ctx context.Context, filename string) error
	// Stats reports aggregate counts for the KB's vector store.
	Stats(ctx context.Context) (Stats, error)

	Close()
}

// Manager holds the concrete search and vector backends for one KB, resolved
// from configuration. The Engine Cache is the sole owner of the Managers it
// hands out and must release them on eviction.
type Manager struct {
	Search FullTextSearch
	Vector VectorStore
}

// Close releases any underlying pools. It's a no-op for memory backends.
func (m Manager) Close() {
	if c, ok := any(m.Search).(interface{ Close() }); ok {
		c.Close()
	}
	if m.Vector != nil {
		m.Vector.Close()
	}
}
