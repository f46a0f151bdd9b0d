package databases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorySearch_IndexAndSearch(t *testing.T) {
	t.Parallel()
	s := NewMemorySearch()
	ctx := context.Background()
	_ = s.Index(ctx, "1", "The quick brown fox jumps over the lazy dog", map[string]string{"type": "doc"})
	_ = s.Index(ctx, "2", "Foxes are swift and quick", nil)
	_ = s.Index(ctx, "3", "Completely unrelated text", nil)
	hits, err := s.Search(ctx, "quick fox", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Contains(t, []string{"1", "2"}, hits[0].ID)
}

func TestMemoryVector_UpsertAndQuery(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	_ = v.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"label": "A"})
	_ = v.Upsert(ctx, "b", []float32{0, 1}, nil)
	_ = v.Upsert(ctx, "c", []float32{1, 1}, nil)
	q := []float32{0.9, 0.1}
	res, err := v.SimilaritySearch(ctx, q, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "a", res[0].ID)
}

func TestMemoryVector_FilterScopesResults(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	_ = v.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"filename": "x.md"})
	_ = v.Upsert(ctx, "b", []float32{1, 0}, map[string]string{"filename": "y.md"})
	res, err := v.SimilaritySearch(ctx, []float32{1, 0}, 10, map[string]string{"filename": "y.md"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "b", res[0].ID)
}

func TestMemoryVector_ListDocumentsAndStats(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	_ = v.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"filename": "x.md"})
	_ = v.Upsert(ctx, "b", []float32{0, 1}, map[string]string{"filename": "x.md"})
	_ = v.Upsert(ctx, "c", []float32{1, 1}, map[string]string{"filename": "y.md"})

	docs, err := v.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, DocSummary{Filename: "x.md", ChunkCount: 2}, docs[0])
	require.Equal(t, DocSummary{Filename: "y.md", ChunkCount: 1}, docs[1])

	stats, err := v.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.DocumentCount)
	require.Equal(t, 3, stats.ChunkCount)
	require.False(t, stats.LastUpdated.IsZero())
}

func TestMemoryVector_DeleteByFilename(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	_ = v.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"filename": "x.md"})
	_ = v.Upsert(ctx, "b", []float32{0, 1}, map[string]string{"filename": "y.md"})

	require.NoError(t, v.DeleteByFilename(ctx, "x.md"))

	docs, err := v.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "y.md", docs[0].Filename)
}
