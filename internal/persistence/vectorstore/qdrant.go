package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// payloadIDField stores the caller-supplied chunk id in the point payload,
// since Qdrant only accepts UUIDs or positive integers as point ids.
const payloadIDField = "_original_id"

const (
	fieldDocID      = "doc_id"
	fieldDocType    = "doc_type"
	fieldPermission = "permission_level"
	fieldPageNum    = "page_num"
)

// QdrantStore is the vector client backed by Qdrant, holding one
// gRPC connection shared across all collections it manages.
type QdrantStore struct {
	log    *logrus.Logger
	client *qdrant.Client

	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewQdrant dials Qdrant at dsn (gRPC, default port 6334). An optional
// `api_key` query parameter authenticates the connection.
func NewQdrant(dsn string, log *logrus.Logger) (*QdrantStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	parsed, err := url.Parse(ensureScheme(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse vector DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in vector DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantStore{log: log, client: client, metrics: map[string]Metric{}}, nil
}

func ensureScheme(dsn string) string {
	for _, p := range []string{"http://", "https://"} {
		if len(dsn) >= len(p) && dsn[:len(p)] == p {
			return dsn
		}
	}
	return "http://" + dsn
}

func qdrantDistance(m Metric) qdrant.Distance {
	switch m {
	case MetricL2:
		return qdrant.Distance_Euclid
	case MetricIP:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func (s *QdrantStore) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("collection %q: dimension must be > 0", spec.Name)
	}
	exists, err := s.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: spec.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(spec.Dimension),
				Distance: qdrantDistance(spec.Metric),
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %q: %w", spec.Name, err)
		}
	}
	s.mu.Lock()
	s.metrics[spec.Name] = spec.Metric
	s.mu.Unlock()
	return nil
}

func (s *QdrantStore) HasCollection(ctx context.Context, name string) (bool, error) {
	return s.client.CollectionExists(ctx, name)
}

func (s *QdrantStore) DropCollection(ctx context.Context, name string) error {
	err := s.client.DeleteCollection(ctx, name)
	s.mu.Lock()
	delete(s.metrics, name)
	s.mu.Unlock()
	return err
}

func (s *QdrantStore) Metric(collection string) (Metric, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[collection]
	return m, ok
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Insert batches all records into a single Upsert call, flushing before
// returning, and returns point primary keys in input order.
func (s *QdrantStore) Insert(ctx context.Context, collection string, records []Record) ([]string, error) {
	points := make([]*qdrant.PointStruct, 0, len(records))
	pks := make([]string, 0, len(records))
	for _, r := range records {
		pk := pointUUID(r.ChunkID)
		pks = append(pks, pk)
		payload := map[string]any{
			fieldDocID:      r.DocID,
			fieldDocType:    r.DocType,
			fieldPermission: r.PermissionLevel,
			fieldPageNum:    int64(r.PageNum),
		}
		if pk != r.ChunkID {
			payload[payloadIDField] = r.ChunkID
		}
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pk),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	if len(points) == 0 {
		return pks, nil
	}
	wait := true
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		return nil, fmt.Errorf("upsert into %q: %w", collection, err)
	}
	return pks, nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qf = &qdrant.Filter{Must: must}
	}
	limit := uint64(topK)
	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", collection, err)
	}
	hits := make([]Hit, 0, len(res))
	for _, p := range res {
		pk := p.Id.GetUuid()
		if pk == "" {
			pk = p.Id.String()
		}
		h := Hit{PK: pk, Distance: p.Score}
		if p.Payload != nil {
			if v, ok := p.Payload[payloadIDField]; ok {
				h.ChunkID = v.GetStringValue()
			} else {
				h.ChunkID = pk
			}
			if v, ok := p.Payload[fieldDocID]; ok {
				h.DocID = v.GetStringValue()
			}
			if v, ok := p.Payload[fieldDocType]; ok {
				h.DocType = v.GetStringValue()
			}
			if v, ok := p.Payload[fieldPermission]; ok {
				h.PermissionLevel = v.GetStringValue()
			}
			if v, ok := p.Payload[fieldPageNum]; ok {
				h.PageNum = int(v.GetIntegerValue())
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection string, filter map[string]string) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("delete requires a non-empty filter")
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	countResp, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         &qdrant.Filter{Must: must},
	})
	var n int
	if err == nil {
		n = int(countResp)
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %q: %w", collection, err)
	}
	return n, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
