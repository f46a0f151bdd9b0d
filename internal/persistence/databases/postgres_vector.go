package databases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgVector is a per-KB pgvector-backed VectorStore. Each KB owns one table,
// named by a sanitized identifier (see registry.TableName), so tenancy is
// enforced by table isolation rather than a row-level filter.
type pgVector struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
	metric     string // cosine|l2|ip
}

// NewPostgresVector creates (if absent) the chunk table for one KB and
// returns a VectorStore scoped to it. table must already be sanitized by the
// caller; values are always passed as parameters, never interpolated.
func NewPostgresVector(ctx context.Context, pool *pgxpool.Pool, table string, dimensions int, metric string) (VectorStore, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create chunk table %s: %w", table, err)
	}
	alter := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`, table)
	if _, err := pool.Exec(ctx, alter); err != nil {
		return nil, fmt.Errorf("add updated_at column on %s: %w", table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_vec_idx ON %s USING ivfflat (vec vector_cosine_ops)`, table, table)
	if _, err := pool.Exec(ctx, idx); err != nil {
		return nil, fmt.Errorf("create ann index on %s: %w", table, err)
	}
	fnIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_filename_idx ON %s ((metadata->>'filename'))`, table, table)
	if _, err := pool.Exec(ctx, fnIdx); err != nil {
		return nil, fmt.Errorf("create filename index on %s: %w", table, err)
	}
	return &pgVector{pool: pool, table: table, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (p *pgVector) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	vecLit := toVectorLiteral(vector)
	stmt := fmt.Sprintf(`
INSERT INTO %s(id, vec, metadata, updated_at) VALUES($1, $2::vector, $3, now())
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec, metadata=EXCLUDED.metadata, updated_at=now()
`, p.table)
	_, err := p.pool.Exec(ctx, stmt, id, vecLit, metadata)
	return err
}

func (p *pgVector) Delete(ctx context.Context, id string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, p.table)
	_, err := p.pool.Exec(ctx, stmt, id)
	return err
}

func (p *pgVector) ListDocuments(ctx context.Context) ([]DocSummary, error) {
	stmt := fmt.Sprintf(`
SELECT metadata->>'filename' AS filename, count(*) AS chunk_count
FROM %s
WHERE metadata ? 'filename'
GROUP BY filename
ORDER BY filename
`, p.table)
	rows, err := p.pool.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]DocSummary, 0)
	for rows.Next() {
		var d DocSummary
		if err := rows.Scan(&d.Filename, &d.ChunkCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *pgVector) DeleteByFilename(ctx context.Context, filename string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE metadata->>'filename' = $1`, p.table)
	_, err := p.pool.Exec(ctx, stmt, filename)
	return err
}

func (p *pgVector) Stats(ctx context.Context) (Stats, error) {
	stmt := fmt.Sprintf(`
SELECT count(DISTINCT metadata->>'filename') FILTER (WHERE metadata ? 'filename'),
       count(*),
       max(updated_at)
FROM %s
`, p.table)
	var docCount, chunkCount int
	var lastUpdated *time.Time
	if err := p.pool.QueryRow(ctx, stmt).Scan(&docCount, &chunkCount, &lastUpdated); err != nil {
		return Stats{}, err
	}
	s := Stats{DocumentCount: docCount, ChunkCount: chunkCount}
	if lastUpdated != nil {
		s.LastUpdated = *lastUpdated
	}
	return s, nil
}

func (p *pgVector) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vecLit := toVectorLiteral(vector)
	op := "<=>" // cosine distance
	scoreExpr := "1 - (vec <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
		scoreExpr = "1 / (1 + (vec <-> $1::vector))"
	case "ip", "dot":
		op = "<#>"
		scoreExpr = "-(vec <#> $1::vector)"
	}
	args := []any{vecLit, k}
	where := ""
	if len(filter) > 0 {
		where = "WHERE metadata @> $3"
		args = []any{vecLit, k, filter}
	}
	query := fmt.Sprintf(`SELECT id, %s AS score, metadata FROM %s %s ORDER BY vec %s $1::vector LIMIT $2`, scoreExpr, p.table, where, op)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorResult, 0, k)
	for rows.Next() {
		var r VectorResult
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgVector) Close() {}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
