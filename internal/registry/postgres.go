package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/persistence/databases"
	"github.com/intelligencedev/ragserver/internal/ragerrors"
)

// pgRegistry is the Postgres-backed Registry. It owns one registry table
// ("knowledge_bases") and allocates/drops each KB's dedicated chunk table via
// databases.NewManager / DROP TABLE.
type pgRegistry struct {
	pool      *pgxpool.Pool
	vectorCfg config.VectorConfig
}

// NewPostgres creates the registry table if absent and returns a Registry
// backed by pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, vectorCfg config.VectorConfig) (Registry, error) {
	ddl := `
CREATE TABLE IF NOT EXISTS knowledge_bases (
  id TEXT PRIMARY KEY,
  name TEXT UNIQUE NOT NULL,
  slug TEXT UNIQUE NOT NULL,
  kb_type TEXT NOT NULL DEFAULT 'generic',
  description TEXT NOT NULL DEFAULT '',
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  embed_dim INT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create knowledge_bases table: %w", err)
	}
	return &pgRegistry{pool: pool, vectorCfg: vectorCfg}, nil
}

func (r *pgRegistry) Create(ctx context.Context, name, kbType, description string, metadata map[string]any, embedDim int) (KB, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return KB{}, fmt.Errorf("kb name: %w", ragerrors.ErrInvalidInput)
	}
	if kbType = strings.TrimSpace(kbType); kbType == "" {
		kbType = "generic"
	}
	slug := Slugify(name)

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM knowledge_bases WHERE name=$1 OR slug=$2)`, name, slug).Scan(&exists); err != nil {
		return KB{}, fmt.Errorf("check kb collision: %w", err)
	}
	if exists {
		return KB{}, fmt.Errorf("kb %q: %w", name, ragerrors.ErrAlreadyExists)
	}

	table := TableName(slug)
	if _, err := databases.NewManager(ctx, r.pool, r.vectorCfg, table, embedDim); err != nil {
		return KB{}, fmt.Errorf("allocate chunk storage for %q: %w", name, ragerrors.ErrStorageError)
	}

	md, err := json.Marshal(metadata)
	if err != nil {
		return KB{}, fmt.Errorf("encode metadata: %w", err)
	}

	kb := KB{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug,
		KBType:      kbType,
		Description: description,
		Metadata:    metadata,
		EmbedDim:    embedDim,
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO knowledge_bases(id, name, slug, kb_type, description, metadata, embed_dim)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at, updated_at`, kb.ID, kb.Name, kb.Slug, kb.KBType, kb.Description, md, kb.EmbedDim)
	if err := row.Scan(&kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return KB{}, fmt.Errorf("insert kb %q: %w", name, ragerrors.ErrStorageError)
	}
	return kb, nil
}

func (r *pgRegistry) List(ctx context.Context, kbType string) ([]KB, error) {
	query := `SELECT id, name, slug, kb_type, description, metadata, embed_dim, created_at, updated_at FROM knowledge_bases`
	args := []any{}
	if kbType = strings.TrimSpace(kbType); kbType != "" {
		query += ` WHERE kb_type=$1`
		args = append(args, kbType)
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kbs: %w", err)
	}
	defer rows.Close()

	out := []KB{}
	for rows.Next() {
		kb, err := scanKB(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, kb)
	}
	return out, rows.Err()
}

func (r *pgRegistry) GetByName(ctx context.Context, name string) (KB, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, slug, kb_type, description, metadata, embed_dim, created_at, updated_at FROM knowledge_bases WHERE name=$1`, name)
	kb, err := scanKB(row)
	if err == pgx.ErrNoRows {
		return KB{}, fmt.Errorf("kb %q: %w", name, ragerrors.ErrNotFound)
	}
	return kb, err
}

func (r *pgRegistry) GetBySlug(ctx context.Context, slug string) (KB, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, slug, kb_type, description, metadata, embed_dim, created_at, updated_at FROM knowledge_bases WHERE slug=$1`, slug)
	kb, err := scanKB(row)
	if err == pgx.ErrNoRows {
		return KB{}, fmt.Errorf("kb slug %q: %w", slug, ragerrors.ErrNotFound)
	}
	return kb, err
}

func (r *pgRegistry) Delete(ctx context.Context, name string) error {
	kb, err := r.GetByName(ctx, name)
	if err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := TableName(kb.Slug)
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return fmt.Errorf("drop chunk table %s: %w", table, ragerrors.ErrStorageError)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_bases WHERE id=$1`, kb.ID); err != nil {
		return fmt.Errorf("delete kb row %q: %w", name, ragerrors.ErrStorageError)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// rowScanner abstracts pgx.Row / pgx.Rows so scanKB works for both List and
// the single-row lookups.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanKB(row rowScanner) (KB, error) {
	var kb KB
	var md []byte
	if err := row.Scan(&kb.ID, &kb.Name, &kb.Slug, &kb.KBType, &kb.Description, &md, &kb.EmbedDim, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return KB{}, err
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &kb.Metadata); err != nil {
			return KB{}, fmt.Errorf("decode kb metadata: %w", err)
		}
	}
	return kb, nil
}
