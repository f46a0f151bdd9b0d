package retrieve

import (
    "context"
    "sync"
    "time"

    "github.com/intelligencedev/ragserver/internal/persistence/databases"
)

// SourceDiagnostics carries per-source retrieval timings and counts, surfaced
// in RetrieveResponse.Debug so callers can see where retrieval time went.
type SourceDiagnostics struct {
    FtLatency  time.Duration
    VecLatency time.Duration
    FtCount    int
    VecCount   int
}

// chunkSearcher is the optional capability of a FullTextSearch backend that
// can restrict lexical search to chunk-type rows scoped by language and
// metadata filter, rather than the coarser Search(query, limit).
type chunkSearcher interface {
    SearchChunks(ctx context.Context, query string, lang string, limit int, filter map[string]string) ([]databases.SearchResult, error)
}

// ParallelCandidates runs the lexical (FTS) and vector legs of a hybrid query
// concurrently against plan.FtK/plan.VecK and returns both candidate lists
// plus per-leg timing for the caller's diagnostics. Either leg is skipped
// when its budget is zero, its backend is nil, or (for the vector leg)
// embVec is empty — a pure-lexical or pure-vector query is a supported
// configuration, not an error.
func ParallelCandidates(ctx context.Context, search databases.FullTextSearch, vector databases.VectorStore, plan QueryPlan, embVec []float32) ([]databases.SearchResult, []databases.VectorResult, SourceDiagnostics, error) {
    var (
        wg               sync.WaitGroup
        fts              []databases.SearchResult
        vrs              []databases.VectorResult
        ftErr, vecErr    error
        ftDur, vecDur    time.Duration
    )

    if plan.FtK > 0 && search != nil {
        wg.Add(1)
        go func() {
            defer wg.Done()
            t0 := time.Now()
            if cs, ok := search.(chunkSearcher); ok {
                fts, ftErr = cs.SearchChunks(ctx, plan.Query, plan.Lang, plan.FtK, plan.Filters)
            } else {
                fts, ftErr = search.Search(ctx, plan.Query, plan.FtK)
            }
            ftDur = time.Since(t0)
        }()
    }

    if plan.VecK > 0 && vector != nil && len(embVec) > 0 {
        wg.Add(1)
        go func() {
            defer wg.Done()
            t0 := time.Now()
            vrs, vecErr = vector.SimilaritySearch(ctx, embVec, plan.VecK, plan.Filters)
            vecDur = time.Since(t0)
        }()
    }

    wg.Wait()

    if ftErr != nil {
        return nil, nil, SourceDiagnostics{}, ftErr
    }
    if vecErr != nil {
        return nil, nil, SourceDiagnostics{}, vecErr
    }
    diag := SourceDiagnostics{FtLatency: ftDur, VecLatency: vecDur, FtCount: len(fts), VecCount: len(vrs)}
    return fts, vrs, diag, nil
}

