// Package ingest implements the ingestion path: parser output is analyzed,
// chunked, persisted, indexed into the lexical index and the vector store,
// and — for drawings — handed to the knowledge extractor for graph writes.
// A document only reaches status completed once both its chunks and its
// vectors are durably indexed.
package ingest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"ragengine/internal/drawing"
	"ragengine/internal/lexical"
	"ragengine/internal/obs"
	"ragengine/internal/persistence/relational"
	"ragengine/internal/persistence/vectorstore"
	"ragengine/internal/textanalysis"
)

// DocumentStore is the relational slice the service mutates.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, d relational.Document) error
	SetDocumentStatus(ctx context.Context, docID string, status relational.DocumentStatus, totalChunks int) error
	ReplaceChunks(ctx context.Context, docID string, chunks []relational.NewChunk) error
	DeleteDocument(ctx context.Context, docID string) error
}

// Embedder produces one embedding per input text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GraphCascade is the graph-side cleanup hook for document deletion.
type GraphCascade interface {
	DeleteDocumentAndRelations(ctx context.Context, docID string) error
}

// LexicalIndex is the BM25 surface ingestion feeds.
type LexicalIndex interface {
	AddDocuments(docs []lexical.Doc)
}

// DrawingProcessor runs knowledge extraction for drawing documents.
type DrawingProcessor interface {
	Process(ctx context.Context, bundle drawing.Bundle) (drawing.Record, error)
}

// Request is one document to ingest: per-page parser output plus metadata.
type Request struct {
	DocID           string
	Name            string
	DocType         string // regulation | project | contract | drawing | other
	PermissionLevel string
	ProjectID       string
	SourcePath      string
	Pages           []string
	Tables          []drawing.Table
	Chunking        ChunkingOptions
}

// Response summarizes one ingestion run.
type Response struct {
	DocID         string
	ChunkIDs      []string
	NumChunks     int
	VectorUpserts int
	Status        relational.DocumentStatus
	DrawingRecord *drawing.Record
}

// collectionForDocType maps a document type onto its authority tier.
func collectionForDocType(docType string) string {
	switch docType {
	case "regulation":
		return "standards"
	case "contract":
		return "contracts"
	default:
		return "projects"
	}
}

// Service owns the ingestion flow.
type Service struct {
	analyzer *textanalysis.Analyzer
	store    DocumentStore
	lex      LexicalIndex
	vec      vectorstore.Store
	embed    Embedder
	graph    GraphCascade
	proc     DrawingProcessor
	log      *logrus.Logger
	metrics  obs.Metrics
}

// Option configures the Service during construction.
type Option func(*Service)

func WithDrawingProcessor(p DrawingProcessor) Option { return func(s *Service) { s.proc = p } }
func WithGraphCascade(g GraphCascade) Option         { return func(s *Service) { s.graph = g } }
func WithLogger(l *logrus.Logger) Option             { return func(s *Service) { s.log = l } }
func WithMetrics(m obs.Metrics) Option               { return func(s *Service) { s.metrics = m } }

// New constructs a Service. Vector store and embedder may be nil together
// to run lexical-only (degraded) ingestion; the document then never
// reaches completed, only failed or processing, since completed requires
// both indexes.
func New(analyzer *textanalysis.Analyzer, store DocumentStore, lex LexicalIndex, vec vectorstore.Store, embed Embedder, opts ...Option) *Service {
	s := &Service{
		analyzer: analyzer,
		store:    store,
		lex:      lex,
		vec:      vec,
		embed:    embed,
		log:      logrus.StandardLogger(),
		metrics:  obs.Noop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest runs one document through the pipeline. Chunks are persisted and
// lexically indexed first, vectors second, and only after both does the
// document transition to completed; any failure marks it failed.
func (s *Service) Ingest(ctx context.Context, req Request) (Response, error) {
	if req.DocID == "" {
		return Response{}, fmt.Errorf("ingest: document id is required")
	}
	collection := collectionForDocType(req.DocType)
	doc := relational.Document{
		ID:               req.DocID,
		Name:             req.Name,
		DocType:          req.DocType,
		PermissionLevel:  req.PermissionLevel,
		ProjectID:        req.ProjectID,
		SourcePath:       req.SourcePath,
		Status:           relational.DocStatusProcessing,
		VectorCollection: collection,
	}
	if err := s.store.UpsertDocument(ctx, doc); err != nil {
		return Response{}, err
	}
	s.metrics.IncCounter("ingestion_docs_total", map[string]string{"doc_type": req.DocType})

	resp, err := s.index(ctx, req, collection)
	if err != nil {
		if serr := s.store.SetDocumentStatus(ctx, req.DocID, relational.DocStatusFailed, resp.NumChunks); serr != nil {
			s.log.WithError(serr).WithField("doc_id", req.DocID).Warn("ingest: failed-status write failed")
		}
		resp.Status = relational.DocStatusFailed
		return resp, err
	}

	if err := s.store.SetDocumentStatus(ctx, req.DocID, relational.DocStatusCompleted, resp.NumChunks); err != nil {
		return resp, err
	}
	resp.Status = relational.DocStatusCompleted
	return resp, nil
}

func (s *Service) index(ctx context.Context, req Request, collection string) (Response, error) {
	resp := Response{DocID: req.DocID}

	chunks := chunkPages(req.Pages, req.Chunking)
	if len(chunks) == 0 {
		return resp, fmt.Errorf("ingest %s: no text to index", req.DocID)
	}

	rows := make([]relational.NewChunk, 0, len(chunks))
	lexDocs := make([]lexical.Doc, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		id := fmt.Sprintf("%s:%d", req.DocID, c.Index)
		tokens := 0
		if s.analyzer != nil {
			tokens = len(s.analyzer.Tokenize(c.Text, textanalysis.ModeDefault))
		}
		rows = append(rows, relational.NewChunk{
			ID:               id,
			ChunkIndex:       c.Index,
			Text:             c.Text,
			TokenCount:       tokens,
			PageNum:          c.PageNum,
			VectorCollection: collection,
		})
		lexDocs = append(lexDocs, lexical.Doc{ID: id, Text: c.Text})
		texts = append(texts, c.Text)
		resp.ChunkIDs = append(resp.ChunkIDs, id)
	}
	resp.NumChunks = len(rows)

	if err := s.store.ReplaceChunks(ctx, req.DocID, rows); err != nil {
		return resp, err
	}
	if s.lex != nil {
		s.lex.AddDocuments(lexDocs)
	}

	if s.vec == nil || s.embed == nil {
		return resp, fmt.Errorf("ingest %s: vector indexing unavailable", req.DocID)
	}
	embeddings, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return resp, fmt.Errorf("ingest %s: embed chunks: %w", req.DocID, err)
	}
	if len(embeddings) != len(rows) {
		return resp, fmt.Errorf("ingest %s: embedder returned %d vectors for %d chunks", req.DocID, len(embeddings), len(rows))
	}
	records := make([]vectorstore.Record, len(rows))
	for i, row := range rows {
		records[i] = vectorstore.Record{
			ChunkID:         row.ID,
			Embedding:       embeddings[i],
			DocID:           req.DocID,
			DocType:         req.DocType,
			PermissionLevel: req.PermissionLevel,
			PageNum:         row.PageNum,
		}
	}
	if _, err := s.vec.Delete(ctx, collection, map[string]string{"doc_id": req.DocID}); err != nil {
		s.log.WithError(err).WithField("doc_id", req.DocID).Warn("ingest: stale vector cleanup failed, continuing")
	}
	pks, err := s.vec.Insert(ctx, collection, records)
	if err != nil {
		return resp, fmt.Errorf("ingest %s: vector insert: %w", req.DocID, err)
	}
	resp.VectorUpserts = len(pks)
	for range rows {
		s.metrics.IncCounter("ingestion_chunks_total", map[string]string{"doc_type": req.DocType})
	}

	if req.DocType == "drawing" && s.proc != nil {
		rec, err := s.proc.Process(ctx, drawing.Bundle{
			DocumentID: req.DocID,
			Name:       req.Name,
			ProjectID:  req.ProjectID,
			Pages:      req.Pages,
			Tables:     req.Tables,
		})
		if err != nil {
			return resp, fmt.Errorf("ingest %s: drawing extraction: %w", req.DocID, err)
		}
		resp.DrawingRecord = &rec
	}
	return resp, nil
}

// Delete cascades a document out of every store: chunks and the document
// row, its vectors, and the graph nodes owned via BELONGS_TO.
func (s *Service) Delete(ctx context.Context, docID, docType string) error {
	collection := collectionForDocType(docType)
	if s.vec != nil {
		if _, err := s.vec.Delete(ctx, collection, map[string]string{"doc_id": docID}); err != nil {
			return fmt.Errorf("delete vectors for %s: %w", docID, err)
		}
	}
	if s.graph != nil {
		if err := s.graph.DeleteDocumentAndRelations(ctx, docID); err != nil {
			return fmt.Errorf("delete graph nodes for %s: %w", docID, err)
		}
	}
	return s.store.DeleteDocument(ctx, docID)
}
