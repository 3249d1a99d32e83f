package lexical

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/textanalysis"
)

func newTestIndex() *Index {
	return New(textanalysis.New(nil))
}

func TestSearchOnUnbuiltIndexReturnsEmpty(t *testing.T) {
	idx := newTestIndex()
	assert.Empty(t, idx.Search("anything", 10))
}

func TestBuildSkipsEmptyChunks(t *testing.T) {
	idx := newTestIndex()
	idx.Build([]Doc{
		{ID: "c1", Text: "C30混凝土 GB50010-2010"},
		{ID: "c2", Text: ""},
		{ID: "c3", Text: "  "},
	})
	assert.Equal(t, 1, idx.GetStats().TotalDocs)
}

func TestSearchFindsRelevantChunk(t *testing.T) {
	idx := newTestIndex()
	idx.Build([]Doc{
		{ID: "C1", Text: "根据GB50010-2010，C30混凝土的强度等级标准值为三十兆帕。"},
		{ID: "C2", Text: "施工现场安全管理制度与安全帽佩戴要求。"},
	})
	results := idx.Search("C30 混凝土强度", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "C1", results[0].ID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchDeterministic(t *testing.T) {
	idx := newTestIndex()
	docs := []Doc{
		{ID: "a", Text: "beam column slab wall foundation beam"},
		{ID: "b", Text: "beam beam beam column"},
		{ID: "c", Text: "slab wall"},
	}
	idx.Build(docs)
	r1 := idx.Search("beam column", 10)
	idx2 := newTestIndex()
	idx2.Build(docs)
	r2 := idx2.Search("beam column", 10)
	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		assert.Equal(t, r1[i].ID, r2[i].ID)
		assert.InDelta(t, r1[i].Score, r2[i].Score, 1e-9)
	}
}

func TestAddDocumentsRebuildsUnion(t *testing.T) {
	idx := newTestIndex()
	idx.Build([]Doc{{ID: "a", Text: "beam column"}})
	idx.AddDocuments([]Doc{{ID: "b", Text: "slab wall beam"}})
	assert.Equal(t, 2, idx.GetStats().TotalDocs)
	results := idx.Search("beam", 10)
	assert.Len(t, results, 2)
}

func TestEmptyQueryReturnsEmpty(t *testing.T) {
	idx := newTestIndex()
	idx.Build([]Doc{{ID: "a", Text: "beam column"}})
	assert.Empty(t, idx.Search("", 10))
	assert.Empty(t, idx.Search("   ", 10))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := newTestIndex()
	idx.Build([]Doc{
		{ID: "a", Text: "beam column slab"},
		{ID: "b", Text: "beam beam column wall"},
	})
	before := idx.Search("beam column", 10)

	dir := t.TempDir()
	path := filepath.Join(dir, "bm25.idx")
	require.NoError(t, idx.Save(path))
	require.FileExists(t, path)

	loaded := newTestIndex()
	require.NoError(t, loaded.Load(path))
	after := loaded.Search("beam column", 10)

	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-9)
	}
	assert.Equal(t, 1.5, loaded.GetStats().K1)
	assert.Equal(t, 0.75, loaded.GetStats().B)
}

func TestLoadMissingFile(t *testing.T) {
	idx := newTestIndex()
	err := idx.Load(filepath.Join(os.TempDir(), "does-not-exist-bm25.idx"))
	assert.Error(t, err)
}
