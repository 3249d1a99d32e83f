package vectorstore

import (
	"context"
	"sort"
)

// TierResult is one hit annotated with the collection tier it came from, so
// callers can tell which collection satisfied a hierarchical search.
type TierResult struct {
	Hit
	Collection string
}

// HierarchicalSearch probes collections in order, accumulating hits, and
// stops as soon as it has topK or more, without probing later tiers. Each
// tier's own hits are sorted by that tier's configured metric before being
// appended, since IP/cosine scores sort descending (best first) while L2
// distances sort ascending (best first); the final accumulated slice is
// truncated to topK without re-sorting across tiers, preserving tier
// priority order.
func HierarchicalSearch(ctx context.Context, store Store, order []string, vector []float32, topK int, filter map[string]string) ([]TierResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	var out []TierResult
	for _, collection := range order {
		if len(out) >= topK {
			break
		}
		has, err := store.HasCollection(ctx, collection)
		if err != nil {
			return nil, err
		}
		if !has {
			continue
		}
		remaining := topK - len(out)
		hits, err := store.Search(ctx, collection, vector, remaining, filter)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			continue
		}
		metric, _ := store.Metric(collection)
		sortHits(hits, metric)
		for _, h := range hits {
			out = append(out, TierResult{Hit: h, Collection: collection})
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func sortHits(hits []Hit, m Metric) {
	if m.Ascending() {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	} else {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance > hits[j].Distance })
	}
}
