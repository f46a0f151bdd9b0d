package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/ragserver/internal/ragerrors"
)

func TestMemoryRegistry_CreateListGetDelete(t *testing.T) {
	ctx := context.Background()
	r := NewMemory()

	kb, err := r.Create(ctx, "Acme Docs", "documentation", "internal docs", map[string]any{"owner": "acme"}, 768)
	require.NoError(t, err)
	require.Equal(t, "acme-docs", kb.Slug)
	require.Equal(t, 768, kb.EmbedDim)

	_, err = r.Create(ctx, "Acme Docs", "documentation", "dup", nil, 768)
	require.ErrorIs(t, err, ragerrors.ErrAlreadyExists)

	got, err := r.GetByName(ctx, "Acme Docs")
	require.NoError(t, err)
	require.Equal(t, kb.ID, got.ID)

	bySlug, err := r.GetBySlug(ctx, "acme-docs")
	require.NoError(t, err)
	require.Equal(t, kb.ID, bySlug.ID)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	filtered, err := r.List(ctx, "code")
	require.NoError(t, err)
	require.Empty(t, filtered)

	require.NoError(t, r.Delete(ctx, "Acme Docs"))
	_, err = r.GetByName(ctx, "Acme Docs")
	require.True(t, errors.Is(err, ragerrors.ErrNotFound))
}

func TestMemoryRegistry_DeleteUnknown(t *testing.T) {
	r := NewMemory()
	err := r.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, ragerrors.ErrNotFound)
}
