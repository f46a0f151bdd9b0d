package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intelligencedev/ragserver/internal/ragerrors"
)

// memRegistry is an in-memory Registry for tests that don't need Postgres.
// It does not allocate physical chunk storage; callers that need storage
// wiring exercised should use NewPostgres against a real pool.
type memRegistry struct {
	mu  sync.RWMutex
	kbs map[string]KB // keyed by name
}

// NewMemory returns an in-memory Registry.
func NewMemory() Registry {
	return &memRegistry{kbs: make(map[string]KB)}
}

func (m *memRegistry) Create(_ context.Context, name, kbType, description string, metadata map[string]any, embedDim int) (KB, error) {
	if name == "" {
		return KB{}, fmt.Errorf("kb name: %w", ragerrors.ErrInvalidInput)
	}
	if kbType == "" {
		kbType = "generic"
	}
	slug := Slugify(name)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.kbs {
		if existing.Name == name || existing.Slug == slug {
			return KB{}, fmt.Errorf("kb %q: %w", name, ragerrors.ErrAlreadyExists)
		}
	}
	now := time.Now()
	kb := KB{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug,
		KBType:      kbType,
		Description: description,
		Metadata:    metadata,
		EmbedDim:    embedDim,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.kbs[name] = kb
	return kb, nil
}

func (m *memRegistry) List(_ context.Context, kbType string) ([]KB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []KB{}
	for _, kb := range m.kbs {
		if kbType != "" && kb.KBType != kbType {
			continue
		}
		out = append(out, kb)
	}
	return out, nil
}

func (m *memRegistry) GetByName(_ context.Context, name string) (KB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kb, ok := m.kbs[name]
	if !ok {
		return KB{}, fmt.Errorf("kb %q: %w", name, ragerrors.ErrNotFound)
	}
	return kb, nil
}

func (m *memRegistry) GetBySlug(_ context.Context, slug string) (KB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, kb := range m.kbs {
		if kb.Slug == slug {
			return kb, nil
		}
	}
	return KB{}, fmt.Errorf("kb slug %q: %w", slug, ragerrors.ErrNotFound)
}

func (m *memRegistry) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kbs[name]; !ok {
		return fmt.Errorf("kb %q: %w", name, ragerrors.ErrNotFound)
	}
	delete(m.kbs, name)
	return nil
}
