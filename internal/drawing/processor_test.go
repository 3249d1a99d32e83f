package drawing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphCall struct {
	op    string
	id    string
	extra string
}

type fakeGraphWriter struct {
	calls   []graphCall
	failOp  string
	failRel string // relation type to fail per-edge
}

func (f *fakeGraphWriter) fail(op string) error {
	if f.failOp == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (f *fakeGraphWriter) CreateDocumentNode(_ context.Context, docID, _, _, _ string, _ map[string]any) error {
	f.calls = append(f.calls, graphCall{op: "document", id: docID})
	return f.fail("document")
}

func (f *fakeGraphWriter) CreateComponent(_ context.Context, id, _ string, props map[string]any) error {
	f.calls = append(f.calls, graphCall{op: "component", id: id, extra: props["code"].(string)})
	return f.fail("component")
}

func (f *fakeGraphWriter) CreateMaterial(_ context.Context, id, _ string, props map[string]any) error {
	f.calls = append(f.calls, graphCall{op: "material", id: id, extra: props["grade"].(string)})
	return f.fail("material")
}

func (f *fakeGraphWriter) CreateSpecification(_ context.Context, id, _ string, props map[string]any) error {
	f.calls = append(f.calls, graphCall{op: "specification", id: id, extra: props["code"].(string)})
	return f.fail("specification")
}

func (f *fakeGraphWriter) CreateDimension(_ context.Context, id, _ string, props map[string]any) error {
	f.calls = append(f.calls, graphCall{op: "dimension", id: id, extra: props["value"].(string)})
	return f.fail("dimension")
}

func (f *fakeGraphWriter) CreateRelation(_ context.Context, relType, fromID, toID string, _ map[string]any) error {
	f.calls = append(f.calls, graphCall{op: "rel:" + relType, id: fromID, extra: toID})
	if f.failRel == relType {
		return errors.New(relType + " edge failed")
	}
	return nil
}

type memRecordStore struct {
	checkpoints []Record
	err         error
}

func (m *memRecordStore) SaveRecord(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.checkpoints = append(m.checkpoints, rec)
	return nil
}

type memSink struct{ events []Event }

func (m *memSink) Publish(_ context.Context, ev Event) error {
	m.events = append(m.events, ev)
	return nil
}

func beamBundle() Bundle {
	return Bundle{
		DocumentID: "d1",
		Name:       "floor plan 3",
		ProjectID:  "p1",
		Pages:      []string{"KL-1 C30 HRB400 300x500 GB50010-2010"},
	}
}

func TestProcessBeamDrawingWritesExpectedGraph(t *testing.T) {
	gw := &fakeGraphWriter{}
	store := &memRecordStore{}
	sink := &memSink{}
	p := NewProcessor(gw, WithRecordStore(store), WithEventSink(sink))

	rec, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.True(t, rec.GraphSynced)
	assert.Equal(t, 5, rec.EntityCount)

	ops := map[string][]graphCall{}
	for _, c := range gw.calls {
		ops[c.op] = append(ops[c.op], c)
	}
	require.Len(t, ops["document"], 1)
	require.Len(t, ops["component"], 1)
	assert.Equal(t, "KL-1", ops["component"][0].extra)
	require.Len(t, ops["material"], 2)
	require.Len(t, ops["specification"], 1)
	require.Len(t, ops["dimension"], 1)

	// Edges: both materials, the section dimension, and the document's
	// spec reference. BELONGS_TO edges ride on entity creation, not
	// CreateRelation.
	assert.Len(t, ops["rel:USES_MATERIAL"], 2)
	assert.Len(t, ops["rel:HAS_DIMENSION"], 1)
	require.Len(t, ops["rel:REFERS_TO"], 1)
	assert.Equal(t, "d1", ops["rel:REFERS_TO"][0].id)
	assert.Empty(t, ops["rel:BELONGS_TO"])
}

func TestProcessReprocessingIsIdempotent(t *testing.T) {
	gw := &fakeGraphWriter{}
	p := NewProcessor(gw)

	_, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	first := make([]graphCall, len(gw.calls))
	copy(first, gw.calls)

	gw.calls = nil
	_, err = p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	// Same node ids both runs, so MERGE-style writes converge.
	assert.Equal(t, first, gw.calls)
}

func TestProcessProgressMonotonicAndCheckpointed(t *testing.T) {
	store := &memRecordStore{}
	sink := &memSink{}
	p := NewProcessor(&fakeGraphWriter{}, WithRecordStore(store), WithEventSink(sink))

	_, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)

	require.NotEmpty(t, store.checkpoints)
	last := 0
	for _, cp := range store.checkpoints {
		assert.GreaterOrEqual(t, cp.Progress, last)
		last = cp.Progress
	}
	assert.Equal(t, 100, last)
	assert.Equal(t, len(store.checkpoints), len(sink.events))
	assert.Equal(t, StatusCompleted, sink.events[len(sink.events)-1].Status)
}

func TestProcessEmptyBundleFails(t *testing.T) {
	store := &memRecordStore{}
	p := NewProcessor(&fakeGraphWriter{}, WithRecordStore(store))

	rec, err := p.Process(context.Background(), Bundle{DocumentID: "d2"})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "basic extraction")
	// The failure itself is checkpointed.
	final := store.checkpoints[len(store.checkpoints)-1]
	assert.Equal(t, StatusFailed, final.Status)
}

func TestProcessGraphWriteFailureIsPartial(t *testing.T) {
	gw := &fakeGraphWriter{failOp: "material"}
	p := NewProcessor(gw)

	rec, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, rec.Status)
	assert.False(t, rec.GraphSynced)
	assert.Contains(t, rec.Error, "graph_write")
	assert.Equal(t, 100, rec.Progress)
}

func TestProcessSingleBadEdgeDoesNotAbort(t *testing.T) {
	gw := &fakeGraphWriter{failRel: "USES_MATERIAL"}
	p := NewProcessor(gw)

	rec, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	// Per-edge failures are swallowed; the write as a whole still counts.
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, rec.GraphSynced)
}

func TestProcessEnricherFailureDegradesToPartial(t *testing.T) {
	p := NewProcessor(&fakeGraphWriter{}, WithEnricher(failingEnricher{}))

	rec, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, rec.Status)
	assert.Contains(t, rec.Error, "llm_enrichment")
	// Rule output still made it to the graph.
	assert.True(t, rec.GraphSynced)
}

func TestProcessEnricherMergesWithRuleOutput(t *testing.T) {
	gw := &fakeGraphWriter{}
	p := NewProcessor(gw, WithEnricher(cannedEnricher{entities: []Entity{
		{Kind: KindComponent, Key: "KL-99", Code: "KL-99", ComponentType: ComponentBeam, Source: "llm"},
		// Duplicate of a rule hit: dedup keeps the rule one.
		{Kind: KindMaterial, Key: "C30", Grade: "C30", MaterialKind: "concrete", Source: "llm"},
	}}))

	rec, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 6, rec.EntityCount)

	var comps []string
	for _, c := range gw.calls {
		if c.op == "component" {
			comps = append(comps, c.extra)
		}
	}
	assert.ElementsMatch(t, []string{"KL-1", "KL-99"}, comps)
}

func TestProcessCheckpointFailureDoesNotAbort(t *testing.T) {
	store := &memRecordStore{err: fmt.Errorf("pg down")}
	p := NewProcessor(&fakeGraphWriter{}, WithRecordStore(store))

	rec, err := p.Process(context.Background(), beamBundle())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
}

type failingEnricher struct{}

func (failingEnricher) EnrichEntities(context.Context, string) ([]Entity, error) {
	return nil, errors.New("llm unavailable")
}

type cannedEnricher struct{ entities []Entity }

func (c cannedEnricher) EnrichEntities(context.Context, string) ([]Entity, error) {
	return c.entities, nil
}
