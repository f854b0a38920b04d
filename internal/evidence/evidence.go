package evidence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/claimlens/backend/pkg/utils"
)

// ErrStoreUnavailable indicates the evidence store could not serve the
// request at all. Callers decide whether that is fatal for their flow.
var ErrStoreUnavailable = errors.New("evidence store unavailable")

// Origin records where an evidence item entered the system.
type Origin string

const (
	OriginInternal Origin = "internal"
	OriginExternal Origin = "external"
)

// Item is a single piece of evidence. ID is derived from content so the same
// text stored twice resolves to the same item.
type Item struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	TrustRank   *int       `json:"trust_rank,omitempty"`
	Origin      Origin     `json:"origin"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// Hit is an item scored against one retrieval query. QueryIndex is the
// position of the query that first surfaced the item.
type Hit struct {
	Item
	Score      float64 `json:"score"`
	QueryIndex int     `json:"query_index"`
}

// Set is an ordered, deduplicated collection of hits.
type Set []Hit

// Store is the persistence boundary for evidence.
type Store interface {
	// Search returns the topK most similar items for the query text.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
	// Upsert stores an item, inserting only if no item with the same ID
	// exists already.
	Upsert(ctx context.Context, item Item) error
}

// TextID derives an evidence ID from item text.
func TextID(text string) string {
	return utils.HashText(text)
}

// ExternalID derives a stable ID for externally fetched content from its URL.
func ExternalID(url string) string {
	return "ext_" + utils.ShortHash(url, 16)
}

// Merge combines per-query result lists into one set. Duplicate IDs keep the
// highest score and the first query index that surfaced them. The result is
// sorted by score descending, ties broken by query index ascending.
func Merge(lists ...[]Hit) Set {
	byID := make(map[string]Hit)
	order := make([]string, 0)

	for _, list := range lists {
		for _, hit := range list {
			existing, seen := byID[hit.ID]
			if !seen {
				byID[hit.ID] = hit
				order = append(order, hit.ID)
				continue
			}
			if hit.Score > existing.Score {
				// Keep the better score but the earlier provenance.
				hit.QueryIndex = existing.QueryIndex
				byID[hit.ID] = hit
			}
		}
	}

	merged := make(Set, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].QueryIndex < merged[j].QueryIndex
	})

	return merged
}

// CountByOrigin tallies how many items in the set came from each origin.
func (s Set) CountByOrigin() (internal, external int) {
	for _, hit := range s {
		switch hit.Origin {
		case OriginExternal:
			external++
		default:
			internal++
		}
	}
	return internal, external
}

// Top returns at most n highest-ranked hits.
func (s Set) Top(n int) Set {
	if n < 0 || n >= len(s) {
		return s
	}
	return s[:n]
}
