package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/drawing"
	"ragengine/internal/lexical"
	"ragengine/internal/persistence/relational"
	"ragengine/internal/persistence/vectorstore"
	"ragengine/internal/textanalysis"
)

type memDocStore struct {
	docs     map[string]relational.Document
	chunks   map[string][]relational.NewChunk
	statuses []relational.DocumentStatus
	failOn   string
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: map[string]relational.Document{}, chunks: map[string][]relational.NewChunk{}}
}

func (m *memDocStore) UpsertDocument(_ context.Context, d relational.Document) error {
	if m.failOn == "upsert" {
		return errors.New("upsert failed")
	}
	m.docs[d.ID] = d
	return nil
}

func (m *memDocStore) SetDocumentStatus(_ context.Context, docID string, status relational.DocumentStatus, totalChunks int) error {
	d := m.docs[docID]
	d.Status = status
	d.TotalChunks = totalChunks
	m.docs[docID] = d
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memDocStore) ReplaceChunks(_ context.Context, docID string, chunks []relational.NewChunk) error {
	if m.failOn == "chunks" {
		return errors.New("chunk write failed")
	}
	m.chunks[docID] = chunks
	return nil
}

func (m *memDocStore) DeleteDocument(_ context.Context, docID string) error {
	delete(m.docs, docID)
	delete(m.chunks, docID)
	return nil
}

type memVecStore struct {
	inserted map[string][]vectorstore.Record
	deleted  []string
	insErr   error
}

func newMemVecStore() *memVecStore { return &memVecStore{inserted: map[string][]vectorstore.Record{}} }

func (m *memVecStore) CreateCollection(context.Context, vectorstore.CollectionSpec) error { return nil }
func (m *memVecStore) HasCollection(context.Context, string) (bool, error)                { return true, nil }
func (m *memVecStore) DropCollection(context.Context, string) error                       { return nil }

func (m *memVecStore) Insert(_ context.Context, collection string, records []vectorstore.Record) ([]string, error) {
	if m.insErr != nil {
		return nil, m.insErr
	}
	m.inserted[collection] = append(m.inserted[collection], records...)
	pks := make([]string, len(records))
	for i, r := range records {
		pks[i] = "pk:" + r.ChunkID
	}
	return pks, nil
}

func (m *memVecStore) Search(context.Context, string, []float32, int, map[string]string) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (m *memVecStore) Delete(_ context.Context, collection string, filter map[string]string) (int, error) {
	m.deleted = append(m.deleted, collection+"|"+filter["doc_id"])
	return 0, nil
}

func (m *memVecStore) Metric(string) (vectorstore.Metric, bool) { return vectorstore.MetricIP, true }

type fixedEmbedder struct{ err error }

func (f fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubProcessor struct {
	rec drawing.Record
	err error
	got *drawing.Bundle
}

func (s *stubProcessor) Process(_ context.Context, b drawing.Bundle) (drawing.Record, error) {
	s.got = &b
	return s.rec, s.err
}

func newService(store *memDocStore, vec *memVecStore, opts ...Option) (*Service, *lexical.Index) {
	analyzer := textanalysis.New(nil)
	idx := lexical.New(analyzer)
	return New(analyzer, store, idx, vec, fixedEmbedder{}, opts...), idx
}

func TestIngestCompletesAfterBothIndexes(t *testing.T) {
	store := newMemDocStore()
	vec := newMemVecStore()
	svc, idx := newService(store, vec)

	resp, err := svc.Ingest(context.Background(), Request{
		DocID:   "d1",
		Name:    "GB50010",
		DocType: "regulation",
		Pages:   []string{"根据GB50010-2010，C30混凝土的强度等级标准值为14.3MPa"},
	})
	require.NoError(t, err)
	assert.Equal(t, relational.DocStatusCompleted, resp.Status)
	require.GreaterOrEqual(t, resp.NumChunks, 1)
	assert.Equal(t, resp.NumChunks, resp.VectorUpserts)

	// Regulation lands in the standards tier.
	assert.Len(t, vec.inserted["standards"], resp.NumChunks)
	assert.Equal(t, "d1", vec.inserted["standards"][0].DocID)

	// Relational row reflects the terminal state and chunk count.
	assert.Equal(t, relational.DocStatusCompleted, store.docs["d1"].Status)
	assert.Equal(t, resp.NumChunks, store.docs["d1"].TotalChunks)

	// And the lexical index can recall the chunk.
	hits := idx.Search("C30 混凝土", 3)
	require.NotEmpty(t, hits)
	assert.Equal(t, resp.ChunkIDs[0], hits[0].ID)
}

func TestIngestChunkIndicesDenseAndZeroBased(t *testing.T) {
	store := newMemDocStore()
	svc, _ := newService(store, newMemVecStore())

	long := strings.Repeat("paragraph text. ", 200)
	resp, err := svc.Ingest(context.Background(), Request{
		DocID: "d2", DocType: "project",
		Pages:    []string{long, long},
		Chunking: ChunkingOptions{MaxChars: 400, Overlap: 50},
	})
	require.NoError(t, err)
	require.Greater(t, resp.NumChunks, 2)
	for i, c := range store.chunks["d2"] {
		assert.Equal(t, i, c.ChunkIndex)
	}
	// Page numbers carried through.
	assert.Equal(t, 1, store.chunks["d2"][0].PageNum)
	assert.Equal(t, 2, store.chunks["d2"][len(store.chunks["d2"])-1].PageNum)
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	store := newMemDocStore()
	svc, _ := newService(store, newMemVecStore())

	resp, err := svc.Ingest(context.Background(), Request{DocID: "d3", DocType: "project"})
	require.Error(t, err)
	assert.Equal(t, relational.DocStatusFailed, resp.Status)
	assert.Equal(t, relational.DocStatusFailed, store.docs["d3"].Status)
}

func TestIngestVectorFailureMarksFailed(t *testing.T) {
	store := newMemDocStore()
	vec := newMemVecStore()
	vec.insErr = errors.New("qdrant down")
	svc, _ := newService(store, vec)

	resp, err := svc.Ingest(context.Background(), Request{
		DocID: "d4", DocType: "contract", Pages: []string{"contract clause text"},
	})
	require.Error(t, err)
	assert.Equal(t, relational.DocStatusFailed, resp.Status)
	// Chunks were written before the vector step, so the failed row still
	// records them; status is what gates visibility.
	assert.NotEmpty(t, store.chunks["d4"])
}

func TestIngestDrawingRunsExtractor(t *testing.T) {
	store := newMemDocStore()
	proc := &stubProcessor{rec: drawing.Record{Status: drawing.StatusCompleted, EntityCount: 5}}
	svc, _ := newService(store, newMemVecStore(), WithDrawingProcessor(proc))

	resp, err := svc.Ingest(context.Background(), Request{
		DocID: "d5", DocType: "drawing", ProjectID: "p1",
		Pages: []string{"KL-1 C30 HRB400 300x500 GB50010-2010"},
	})
	require.NoError(t, err)
	require.NotNil(t, proc.got)
	assert.Equal(t, "d5", proc.got.DocumentID)
	require.NotNil(t, resp.DrawingRecord)
	assert.Equal(t, 5, resp.DrawingRecord.EntityCount)
	// Drawings land in the projects tier.
	assert.Contains(t, store.docs["d5"].VectorCollection, "projects")
}

type memCascade struct{ deleted []string }

func (m *memCascade) DeleteDocumentAndRelations(_ context.Context, docID string) error {
	m.deleted = append(m.deleted, docID)
	return nil
}

func TestDeleteCascadesAllStores(t *testing.T) {
	store := newMemDocStore()
	vec := newMemVecStore()
	cascade := &memCascade{}
	svc, _ := newService(store, vec, WithGraphCascade(cascade))

	_, err := svc.Ingest(context.Background(), Request{
		DocID: "d6", DocType: "project", Pages: []string{"some text"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "d6", "project"))
	assert.NotContains(t, store.docs, "d6")
	assert.Equal(t, []string{"d6"}, cascade.deleted)
	assert.Contains(t, vec.deleted, "projects|d6")
}

func TestChunkPagesBoundaries(t *testing.T) {
	pages := []string{strings.Repeat("词语内容测试", 100)}
	chunks := chunkPages(pages, ChunkingOptions{MaxChars: 250, Overlap: 0})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		// No chunk splits a multi-byte rune.
		assert.LessOrEqual(t, len(c.Text), 250, fmt.Sprintf("chunk too long: %d", len(c.Text)))
		assert.True(t, utf8.ValidString(c.Text))
	}
}
