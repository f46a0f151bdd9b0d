package databases

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSearch is a per-KB lexical full-text search backend layered onto the same
// chunk table pgVector writes to (see NewPostgresVector), so a hybrid query
// never has to join across tables.
type pgSearch struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSearch adds the generated tsvector column and GIN index needed
// for lexical search to an existing per-KB chunk table and returns a
// FullTextSearch scoped to it.
func NewPostgresSearch(ctx context.Context, pool *pgxpool.Pool, table string) (FullTextSearch, error) {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
)`, table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create chunk table %s: %w", table, err)
	}
	alter := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS text TEXT NOT NULL DEFAULT ''`, table)
	if _, err := pool.Exec(ctx, alter); err != nil {
		return nil, fmt.Errorf("add text column to %s: %w", table, err)
	}
	tsCol := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(text,''))) STORED`, table)
	if _, err := pool.Exec(ctx, tsCol); err != nil {
		return nil, fmt.Errorf("add ts column to %s: %w", table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ts_idx ON %s USING GIN (ts)`, table, table)
	if _, err := pool.Exec(ctx, idx); err != nil {
		return nil, fmt.Errorf("create ts index on %s: %w", table, err)
	}
	return &pgSearch{pool: pool, table: table}, nil
}

func (p *pgSearch) Index(ctx context.Context, id, text string, metadata map[string]string) error {
	stmt := fmt.Sprintf(`
INSERT INTO %s(id, text, metadata) VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, metadata=EXCLUDED.metadata
`, p.table)
	_, err := p.pool.Exec(ctx, stmt, id, text, mapToJSON(metadata))
	return err
}

func (p *pgSearch) Remove(ctx context.Context, id string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, p.table)
	_, err := p.pool.Exec(ctx, stmt, id)
	return err
}

func (p *pgSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	stmt := fmt.Sprintf(`
SELECT id, ts_rank(ts, plainto_tsquery('simple',$1)) AS score,
       left(text, 200) AS snippet, text, metadata
FROM %s
WHERE ts @@ plainto_tsquery('simple',$1)
ORDER BY score DESC
LIMIT $2
`, p.table)
	rows, err := p.pool.Query(ctx, stmt, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SearchResult, 0, limit)
	for rows.Next() {
		var r SearchResult
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &r.Snippet, &r.Text, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

// mapToJSON ensures we never return nil to the database layer; an empty map
// avoids writing SQL NULL into the NOT NULL JSONB column.
func mapToJSON(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
