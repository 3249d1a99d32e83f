package retrieve

import (
	"context"

	"ragengine/internal/persistence/vectorstore"
)

// TieredVectorChannel adapts the three-tier hierarchical search into the
// VectorChannel surface the fan-out calls, so the retriever sees one flat
// ranked list regardless of which tiers satisfied the query.
type TieredVectorChannel struct {
	store vectorstore.Store
	order []string
}

// NewTieredVectorChannel wires a channel over store probing collections in
// order (the configured tier priority, normally standards, projects,
// contracts).
func NewTieredVectorChannel(store vectorstore.Store, order []string) *TieredVectorChannel {
	return &TieredVectorChannel{store: store, order: order}
}

func (t *TieredVectorChannel) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]vectorstore.Hit, error) {
	tiers, err := vectorstore.HierarchicalSearch(ctx, t.store, t.order, vector, topK, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]vectorstore.Hit, 0, len(tiers))
	for _, tr := range tiers {
		hits = append(hits, tr.Hit)
	}
	return hits, nil
}
