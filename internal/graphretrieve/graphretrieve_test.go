package graphretrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/persistence/graphstore"
)

// fakeRepo is a canned Repository for exercising Search without a live
// graph store.
type fakeRepo struct {
	entities  map[string][]graphstore.EntityMatch // key: label|field|value
	relations map[string][]graphstore.RelatedNode // key: entity id
	docs      []graphstore.EntityMatch
	err       error
}

func (f *fakeRepo) FindEntities(_ context.Context, label, field, value, _ string) ([]graphstore.EntityMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entities[label+"|"+field+"|"+value], nil
}

func (f *fakeRepo) ExpandRelations(_ context.Context, id string, _, _ int) ([]graphstore.RelatedNode, error) {
	return f.relations[id], nil
}

func (f *fakeRepo) RelatedDocuments(_ context.Context, _ []string) ([]graphstore.EntityMatch, error) {
	return f.docs, nil
}

var _ Repository = (*fakeRepo)(nil)

func TestSearchLinksCodeAndRendersContext(t *testing.T) {
	repo := &fakeRepo{
		entities: map[string][]graphstore.EntityMatch{
			"Component|code|KL-1": {
				{ID: "comp1", Label: graphstore.LabelComponent, Precision: 0.9,
					Props: map[string]any{"id": "comp1", "code": "KL-1", "component_type": "beam"}},
			},
		},
		relations: map[string][]graphstore.RelatedNode{
			"comp1": {
				{ID: "mat1", Label: graphstore.LabelMaterial, RelType: graphstore.RelUsesMaterial,
					Props: map[string]any{"id": "mat1", "grade": "C30"}},
				{ID: "spec1", Label: graphstore.LabelSpecification, RelType: graphstore.RelRefersTo,
					Props: map[string]any{"id": "spec1", "code": "GB50010-2010"}},
			},
		},
	}
	r := New(repo, nil)
	result := r.Search(context.Background(), "Beam KL-1 schedule", Options{TopK: 5})

	require.Len(t, result.Hits, 1)
	hit := result.Hits[0]
	assert.Equal(t, "comp1", hit.Entity.ID)
	assert.Equal(t, "graph", hit.Source)
	assert.Contains(t, hit.Text, "Component `KL-1` is a beam.")
	assert.Contains(t, hit.Text, "Uses material `C30`.")
	assert.Contains(t, hit.Text, "Refers to `GB50010-2010`.")
}

func TestSearchDegradesToEmptyOnLookupError(t *testing.T) {
	repo := &fakeRepo{err: assertErr{"graph store unreachable"}}
	r := New(repo, nil)
	result := r.Search(context.Background(), "Beam KL-1", Options{})
	assert.Empty(t, result.Hits)
}

func TestSearchNilRepositoryReturnsEmpty(t *testing.T) {
	r := New(nil, nil)
	result := r.Search(context.Background(), "anything KL-1", Options{})
	assert.Empty(t, result.Hits)
}

func TestSearchNoEntitiesInQueryReturnsEmpty(t *testing.T) {
	r := New(&fakeRepo{}, nil)
	result := r.Search(context.Background(), "what is the weather", Options{})
	assert.Empty(t, result.Hits)
}

func TestSearchCapsContextBudget(t *testing.T) {
	repo := &fakeRepo{
		entities: map[string][]graphstore.EntityMatch{
			"Component|code|KL-1": {
				{ID: "comp1", Label: graphstore.LabelComponent, Precision: 0.9,
					Props: map[string]any{"id": "comp1", "code": "KL-1", "component_type": "beam"}},
			},
		},
	}
	r := New(repo, nil)
	result := r.Search(context.Background(), "KL-1", Options{ContextBudget: 10})
	require.Len(t, result.Hits, 1)
	assert.LessOrEqual(t, len(result.Hits[0].Text), 10)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
