package vectorstore

import (
	"context"
	"fmt"
)

// fakeStore is an in-memory Store used by tests, independent of any real
// vector database.
type fakeStore struct {
	collections map[string]CollectionSpec
	records     map[string][]Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: map[string]CollectionSpec{},
		records:     map[string][]Record{},
	}
}

func (f *fakeStore) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	f.collections[spec.Name] = spec
	return nil
}

func (f *fakeStore) HasCollection(ctx context.Context, name string) (bool, error) {
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeStore) DropCollection(ctx context.Context, name string) error {
	delete(f.collections, name)
	delete(f.records, name)
	return nil
}

func (f *fakeStore) Insert(ctx context.Context, collection string, records []Record) ([]string, error) {
	f.records[collection] = append(f.records[collection], records...)
	pks := make([]string, len(records))
	for i, r := range records {
		pks[i] = r.ChunkID
	}
	return pks, nil
}

// Search returns records in storage order with a synthetic Distance equal to
// their insertion index, scaled by -1 for descending metrics so that "closer
// to the front" always means "better" regardless of metric direction,
// letting tests assert deterministic tier ordering.
func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Hit, error) {
	recs := f.records[collection]
	metric, _ := f.Metric(collection)
	out := make([]Hit, 0, len(recs))
	for i, r := range recs {
		if !matchesFilter(r, filter) {
			continue
		}
		dist := float32(i)
		if !metric.Ascending() {
			dist = -dist
		}
		out = append(out, Hit{
			PK:              r.ChunkID,
			Distance:        dist,
			ChunkID:         r.ChunkID,
			DocID:           r.DocID,
			DocType:         r.DocType,
			PermissionLevel: r.PermissionLevel,
			PageNum:         r.PageNum,
		})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func matchesFilter(r Record, filter map[string]string) bool {
	for k, v := range filter {
		switch k {
		case fieldDocType:
			if r.DocType != v {
				return false
			}
		case fieldPermission:
			if r.PermissionLevel != v {
				return false
			}
		}
	}
	return true
}

func (f *fakeStore) Delete(ctx context.Context, collection string, filter map[string]string) (int, error) {
	recs := f.records[collection]
	kept := recs[:0:0]
	n := 0
	for _, r := range recs {
		if matchesFilter(r, filter) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.records[collection] = kept
	return n, nil
}

func (f *fakeStore) Metric(collection string) (Metric, bool) {
	spec, ok := f.collections[collection]
	if !ok {
		return "", false
	}
	return spec.Metric, true
}

var _ Store = (*fakeStore)(nil)

func fmtID(n int) string { return fmt.Sprintf("chunk-%d", n) }
