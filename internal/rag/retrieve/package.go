package retrieve

import (
	"context"
	"time"
)

// AssembleResults runs the post-fusion pipeline: optional reranking and
// final pruning to K.
func AssembleResults(ctx context.Context, rr Reranker, plan QueryPlan, opt RetrieveOptions, fused []RetrievedItem) ([]RetrievedItem, map[string]any, error) {
	debug := map[string]any{}
	items := fused

	if opt.Rerank {
		if rr == nil {
			rr = NoopReranker{}
		}
		t0 := time.Now()
		out, err := rr.Rerank(ctx, plan.Query, items)
		if err != nil {
			return items, debug, err
		}
		items = out
		debug["rerank_ms"] = time.Since(t0).Milliseconds()
	}

	k := opt.K
	if k <= 0 {
		k = 10
	}
	if len(items) > k {
		items = items[:k]
	}
	return items, debug, nil
}
