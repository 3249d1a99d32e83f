package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchicalSearchStopsWhenFirstTierSatisfies(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "standards", Dimension: 4, Metric: MetricCosine}))
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "projects", Dimension: 4, Metric: MetricCosine}))

	for n := 0; n < 5; n++ {
		_, err := store.Insert(ctx, "standards", []Record{{ChunkID: fmtID(n), Embedding: []float32{1, 0, 0, 0}}})
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, "projects", []Record{{ChunkID: "proj-0", Embedding: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	results, err := HierarchicalSearch(ctx, store, []string{"standards", "projects"}, []float32{1, 0, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "standards", r.Collection)
	}
}

func TestHierarchicalSearchFallsThroughToLaterTiers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "standards", Dimension: 4, Metric: MetricCosine}))
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "projects", Dimension: 4, Metric: MetricCosine}))
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "contracts", Dimension: 4, Metric: MetricL2}))

	_, err := store.Insert(ctx, "standards", []Record{{ChunkID: "s0", Embedding: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "projects", []Record{{ChunkID: "p0", Embedding: []float32{1, 0, 0, 0}}, {ChunkID: "p1", Embedding: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "contracts", []Record{{ChunkID: "c0", Embedding: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	results, err := HierarchicalSearch(ctx, store, []string{"standards", "projects", "contracts"}, []float32{1, 0, 0, 0}, 4, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "standards", results[0].Collection)
	assert.Equal(t, "projects", results[1].Collection)
	assert.Equal(t, "projects", results[2].Collection)
	assert.Equal(t, "contracts", results[3].Collection)
}

func TestHierarchicalSearchSkipsMissingCollection(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "contracts", Dimension: 4, Metric: MetricCosine}))
	_, err := store.Insert(ctx, "contracts", []Record{{ChunkID: "c0", Embedding: []float32{1, 0, 0, 0}}})
	require.NoError(t, err)

	results, err := HierarchicalSearch(ctx, store, []string{"standards", "projects", "contracts"}, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "contracts", results[0].Collection)
}

func TestHierarchicalSearchZeroTopK(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	results, err := HierarchicalSearch(ctx, store, []string{"standards"}, []float32{1}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHierarchicalSearchAscendingMetricSortsClosestFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.CreateCollection(ctx, CollectionSpec{Name: "contracts", Dimension: 4, Metric: MetricL2}))
	for n := 0; n < 3; n++ {
		_, err := store.Insert(ctx, "contracts", []Record{{ChunkID: fmtID(n), Embedding: []float32{1, 0, 0, 0}}})
		require.NoError(t, err)
	}
	results, err := HierarchicalSearch(ctx, store, []string{"contracts"}, []float32{1, 0, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}
