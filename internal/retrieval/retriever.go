package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/internal/metrics"
	"github.com/claimlens/backend/pkg/logger"
)

// TrustRanker supplies publisher trust ranks for internal evidence. Lookups
// are best-effort; a miss or error leaves the item unranked.
type TrustRanker interface {
	TrustRank(ctx context.Context, sourceID string) (rank int, found bool, err error)
}

// Retriever fans a retrieval plan's queries out against the evidence store
// and merges the results.
type Retriever struct {
	store  evidence.Store
	ranker TrustRanker
	logger *zap.Logger
}

func NewRetriever(store evidence.Store, ranker TrustRanker) *Retriever {
	return &Retriever{
		store:  store,
		ranker: ranker,
		logger: logger.GetLogger(),
	}
}

// Retrieve searches every query concurrently and returns the merged set.
// Individual query failures are tolerated; only when every query fails is
// evidence.ErrStoreUnavailable returned. An empty set with no failures is a
// valid result.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, topK int) (evidence.Set, error) {
	if len(queries) == 0 {
		return evidence.Set{}, nil
	}
	if topK <= 0 {
		topK = 10
	}

	results := make([][]evidence.Hit, len(queries))
	var mu sync.Mutex
	var failures int

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			hits, err := r.store.Search(gctx, query, topK)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("Evidence search failed for query",
					zap.Int("query_index", i),
					zap.Error(err),
				)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			for j := range hits {
				hits[j].QueryIndex = i
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failures == len(queries) {
		return nil, fmt.Errorf("%w: all %d queries failed", evidence.ErrStoreUnavailable, len(queries))
	}

	// Merging multiple per-query result lists can exceed the requested
	// depth; the caller asked for topK items total, not per query.
	merged := evidence.Merge(results...).Top(topK)
	r.annotateTrust(ctx, merged)
	metrics.RecordEvidenceRetrieved(len(merged))

	return merged, nil
}

// annotateTrust fills trust ranks for internal items that carry a source ID.
func (r *Retriever) annotateTrust(ctx context.Context, set evidence.Set) {
	if r.ranker == nil {
		return
	}
	for i := range set {
		if set[i].Origin != evidence.OriginInternal || set[i].SourceID == "" || set[i].TrustRank != nil {
			continue
		}
		rank, found, err := r.ranker.TrustRank(ctx, set[i].SourceID)
		if err != nil {
			r.logger.Debug("Trust rank lookup failed",
				zap.String("source_id", set[i].SourceID),
				zap.Error(err),
			)
			continue
		}
		if found {
			set[i].TrustRank = &rank
		}
	}
}
