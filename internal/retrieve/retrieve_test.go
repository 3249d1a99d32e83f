package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/graphretrieve"
	"ragengine/internal/lexical"
	"ragengine/internal/persistence/relational"
	"ragengine/internal/persistence/vectorstore"
)

type fakeLex struct{ res []lexical.Result }

func (f fakeLex) Search(string, int) []lexical.Result { return f.res }

type fakeEmbed struct{ err error }

func (f fakeEmbed) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeVec struct {
	hits []vectorstore.Hit
	err  error
}

func (f fakeVec) Search(context.Context, []float32, int, map[string]string) ([]vectorstore.Hit, error) {
	return f.hits, f.err
}

type fakeGraph struct{ res graphretrieve.Result }

func (f fakeGraph) Search(context.Context, string, graphretrieve.Options) graphretrieve.Result {
	return f.res
}

type fakeChunks struct {
	rows []relational.Chunk
	err  error
}

func (f fakeChunks) GetChunksByIDs(context.Context, []string) ([]relational.Chunk, error) {
	return f.rows, f.err
}

type fakeReranker struct {
	scores []float64
	err    error
}

func (f fakeReranker) Score(context.Context, string, []string) ([]float64, error) {
	return f.scores, f.err
}

func TestRetrieveTopKZeroReturnsEmpty(t *testing.T) {
	r := New(fakeLex{res: []lexical.Result{{ID: "c1", Score: 1}}}, fakeEmbed{}, fakeVec{}, fakeGraph{}, nil)
	res, err := r.Retrieve(context.Background(), "q", Options{TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestRetrieveDegradesOnVectorFailure(t *testing.T) {
	chunks := fakeChunks{rows: []relational.Chunk{{ID: "c1", DocumentID: "d1", Text: "alpha"}}}
	r := New(
		fakeLex{res: []lexical.Result{{ID: "c1", Score: 2.0, Rank: 1}}},
		fakeEmbed{},
		fakeVec{err: errors.New("qdrant unreachable")},
		fakeGraph{},
		chunks,
	)
	res, err := r.Retrieve(context.Background(), "q", Options{TopK: 3})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "c1", res.Candidates[0].ChunkID)
	assert.Equal(t, "alpha", res.Candidates[0].Text)
	assert.Equal(t, []string{"bm25"}, res.Candidates[0].RetrievalSources)
}

func TestRetrieveDegradesOnEmbedFailure(t *testing.T) {
	chunks := fakeChunks{rows: []relational.Chunk{{ID: "c1", Text: "alpha"}}}
	r := New(
		fakeLex{res: []lexical.Result{{ID: "c1", Score: 1.0, Rank: 1}}},
		fakeEmbed{err: errors.New("embedding service down")},
		fakeVec{hits: []vectorstore.Hit{{ChunkID: "c9"}}},
		fakeGraph{},
		chunks,
	)
	res, err := r.Retrieve(context.Background(), "q", Options{TopK: 3})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "c1", res.Candidates[0].ChunkID)
}

func TestRetrieveCancelledContextSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(fakeLex{}, fakeEmbed{}, fakeVec{}, fakeGraph{}, nil)
	_, err := r.Retrieve(ctx, "q", Options{TopK: 3})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrieveDropsChunksMissingFromStore(t *testing.T) {
	chunks := fakeChunks{rows: []relational.Chunk{{ID: "c1", Text: "present"}}}
	r := New(
		fakeLex{res: []lexical.Result{{ID: "c1", Score: 2}, {ID: "ghost", Score: 1}}},
		fakeEmbed{}, fakeVec{}, fakeGraph{}, chunks,
	)
	res, err := r.Retrieve(context.Background(), "q", Options{TopK: 5})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "c1", res.Candidates[0].ChunkID)
}

func TestRetrieveRerankReordersAndKeepsFusionMetadata(t *testing.T) {
	chunks := fakeChunks{rows: []relational.Chunk{
		{ID: "c1", Text: "first"},
		{ID: "c2", Text: "second"},
	}}
	r := New(
		fakeLex{res: []lexical.Result{{ID: "c1", Score: 5}, {ID: "c2", Score: 1}}},
		fakeEmbed{}, fakeVec{}, fakeGraph{}, chunks,
		WithReranker(fakeReranker{scores: []float64{0.1, 0.9}}),
	)
	res, err := r.Retrieve(context.Background(), "q", Options{TopK: 5, UseRerank: true})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	// Cross-encoder inverted the fusion order.
	assert.Equal(t, "c2", res.Candidates[0].ChunkID)
	require.NotNil(t, res.Candidates[0].RerankScore)
	assert.Equal(t, 0.9, *res.Candidates[0].RerankScore)
	// Fusion provenance survives the resort.
	assert.Equal(t, 2, res.Candidates[0].BM25Rank)
	assert.Positive(t, res.Candidates[0].FusionScore)
}

func TestRetrieveRerankFailureKeepsFusionOrder(t *testing.T) {
	chunks := fakeChunks{rows: []relational.Chunk{
		{ID: "c1", Text: "first"},
		{ID: "c2", Text: "second"},
	}}
	r := New(
		fakeLex{res: []lexical.Result{{ID: "c1", Score: 5}, {ID: "c2", Score: 1}}},
		fakeEmbed{}, fakeVec{}, fakeGraph{}, chunks,
		WithReranker(fakeReranker{err: errors.New("cross encoder down")}),
	)
	res, err := r.Retrieve(context.Background(), "q", Options{TopK: 5, UseRerank: true})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "c1", res.Candidates[0].ChunkID)
	assert.Nil(t, res.Candidates[0].RerankScore)
}

func TestRetrieveGraphEnhancementAttachesContext(t *testing.T) {
	hit := graphHit("KL-1", "Component `KL-1` is a beam. Uses material `C30`.", 0.9)
	chunks := fakeChunks{rows: []relational.Chunk{
		{ID: "c1", Text: "梁KL-1采用C30混凝土浇筑"},
		{ID: "c2", Text: "unrelated text"},
	}}
	r := New(
		fakeLex{res: []lexical.Result{{ID: "c1", Score: 5}, {ID: "c2", Score: 4}}},
		fakeEmbed{}, fakeVec{},
		fakeGraph{res: graphretrieve.Result{Hits: []graphretrieve.Hit{hit}}},
		chunks,
	)
	res, err := r.Retrieve(context.Background(), "KL-1", Options{TopK: 5, EnhanceWithGraph: true})
	require.NoError(t, err)

	byID := map[string]Candidate{}
	for _, c := range res.Candidates {
		byID[c.ChunkID] = c
	}
	assert.Equal(t, hit.Text, byID["c1"].GraphContext)
	assert.Empty(t, byID["c2"].GraphContext)
	// Global summary rides on the first fused result.
	assert.Contains(t, res.Candidates[0].GlobalGraphContext, "KL-1")
}
