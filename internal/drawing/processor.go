package drawing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is a DrawingProcessingRecord's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// Record tracks one drawing's processing state: status, monotonically
// non-decreasing progress, per-step timings, counts, and the graph-sync
// flag.
type Record struct {
	DocumentID    string
	Status        Status
	Progress      int // 0..100
	StepDurations map[string]time.Duration
	EntityCount   int
	RelationCount int
	GraphSynced   bool
	Error         string
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// RecordStore persists processing records; a checkpoint write happens after
// every step. Failures are the caller's to log — a lost checkpoint must not
// abort the run.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec Record) error
}

// EventSink receives a state-transition event on each step boundary, the
// pluggable async surface drawing ingestion exposes.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// Event is one processing state transition.
type Event struct {
	DocumentID string    `json:"document_id"`
	Step       string    `json:"step"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Timestamp  time.Time `json:"timestamp"`
}

// GraphWriter is the slice of the graph repository the processor writes
// through.
type GraphWriter interface {
	CreateDocumentNode(ctx context.Context, docID, name, docType, projectID string, props map[string]any) error
	CreateComponent(ctx context.Context, id, documentID string, props map[string]any) error
	CreateMaterial(ctx context.Context, id, documentID string, props map[string]any) error
	CreateSpecification(ctx context.Context, id, documentID string, props map[string]any) error
	CreateDimension(ctx context.Context, id, documentID string, props map[string]any) error
	CreateRelation(ctx context.Context, relType, fromID, toID string, props map[string]any) error
}

// Enricher is the optional LLM enrichment step: given a text sample it
// returns entities in the same schema as the rule pass. No enricher is
// wired by default; a caller opts in with WithEnricher.
type Enricher interface {
	EnrichEntities(ctx context.Context, textSample string) ([]Entity, error)
}

// Bundle is one parsed drawing as handed over by the upstream parsers:
// text per page plus extracted tables.
type Bundle struct {
	DocumentID string
	Name       string
	ProjectID  string
	Pages      []string
	Tables     []Table
}

// Processor runs the linear extraction pipeline over a bundle.
type Processor struct {
	graph    GraphWriter
	store    RecordStore
	events   EventSink
	enricher Enricher
	log      *logrus.Logger
	now      func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

func WithRecordStore(s RecordStore) ProcessorOption { return func(p *Processor) { p.store = s } }
func WithEventSink(e EventSink) ProcessorOption     { return func(p *Processor) { p.events = e } }
func WithEnricher(e Enricher) ProcessorOption       { return func(p *Processor) { p.enricher = e } }
func WithProcessorLogger(l *logrus.Logger) ProcessorOption {
	return func(p *Processor) { p.log = l }
}
func withClock(now func() time.Time) ProcessorOption { return func(p *Processor) { p.now = now } }

// NewProcessor constructs a Processor writing to graph. Store and sink are
// optional; without them the run simply keeps its record in memory.
func NewProcessor(graph GraphWriter, opts ...ProcessorOption) *Processor {
	p := &Processor{
		graph: graph,
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// step progress checkpoints; progress only ever moves forward.
const (
	progressBasic     = 20
	progressTables    = 35
	progressEnrich    = 50
	progressDedup     = 60
	progressRelations = 75
	progressGraph     = 100
)

// Process runs the pipeline: basic extraction, table extraction, optional
// enrichment, dedup, relation inference, graph write. A failing step records
// its error and later steps continue, except basic extraction, whose failure
// fails the whole run. A run with a recorded step error that still reaches
// the end transitions to partial rather than completed.
func (p *Processor) Process(ctx context.Context, bundle Bundle) (Record, error) {
	rec := Record{
		DocumentID:    bundle.DocumentID,
		Status:        StatusPending,
		StepDurations: map[string]time.Duration{},
		StartedAt:     p.now().UTC(),
	}
	p.checkpoint(ctx, &rec, "start")

	rec.Status = StatusProcessing
	degraded := false

	// Step 1: basic extraction. The one step whose failure aborts the run.
	t0 := p.now()
	var entities []Entity
	if len(bundle.Pages) == 0 {
		rec.Status = StatusFailed
		rec.Error = "basic extraction: drawing bundle has no page text"
		p.checkpoint(ctx, &rec, "basic_extraction")
		return rec, fmt.Errorf("%s", rec.Error)
	}
	for _, page := range bundle.Pages {
		entities = append(entities, ExtractBasic(page, "rule")...)
	}
	rec.StepDurations["basic_extraction"] = p.now().Sub(t0)
	p.advance(ctx, &rec, "basic_extraction", progressBasic)

	// Step 2: table extraction.
	t0 = p.now()
	entities = append(entities, ExtractFromTables(bundle.Tables)...)
	rec.StepDurations["table_extraction"] = p.now().Sub(t0)
	p.advance(ctx, &rec, "table_extraction", progressTables)

	// Step 3: optional LLM enrichment.
	if p.enricher != nil {
		t0 = p.now()
		sample := textSample(bundle.Pages, 2000)
		enriched, err := p.enricher.EnrichEntities(ctx, sample)
		if err != nil {
			p.log.WithError(err).WithField("doc_id", bundle.DocumentID).
				Warn("drawing: llm enrichment failed, continuing with rule output")
			rec.Error = appendErr(rec.Error, "llm_enrichment: "+err.Error())
			degraded = true
		} else {
			entities = append(entities, enriched...)
		}
		rec.StepDurations["llm_enrichment"] = p.now().Sub(t0)
	}
	p.advance(ctx, &rec, "llm_enrichment", progressEnrich)

	// Step 4: dedup by the per-variant collision keys.
	t0 = p.now()
	entities = Dedup(entities)
	rec.EntityCount = len(entities)
	rec.StepDurations["dedup"] = p.now().Sub(t0)
	p.advance(ctx, &rec, "dedup", progressDedup)

	// Step 5: relation inference.
	t0 = p.now()
	docKey := "doc:" + bundle.DocumentID
	relations := InferRelations(docKey, entities)
	rec.RelationCount = len(relations)
	rec.StepDurations["relation_inference"] = p.now().Sub(t0)
	p.advance(ctx, &rec, "relation_inference", progressRelations)

	// Step 6: graph write.
	t0 = p.now()
	if err := p.writeGraph(ctx, bundle, docKey, entities, relations); err != nil {
		p.log.WithError(err).WithField("doc_id", bundle.DocumentID).Error("drawing: graph write failed")
		rec.Error = appendErr(rec.Error, "graph_write: "+err.Error())
		degraded = true
	} else {
		rec.GraphSynced = true
	}
	rec.StepDurations["graph_write"] = p.now().Sub(t0)

	if degraded {
		rec.Status = StatusPartial
	} else {
		rec.Status = StatusCompleted
	}
	p.advance(ctx, &rec, "graph_write", progressGraph)
	return rec, nil
}

// writeGraph creates the document node, every entity (which also creates
// its BELONGS_TO edge), and the inferred relations. Node ids are derived
// from (doc_id, entity_key) so re-processing the same drawing is
// idempotent. Per-edge failures are logged and swallowed so a single bad
// row does not abort the write; an entity-creation failure aborts, since
// relations over missing endpoints would violate the graph invariant.
func (p *Processor) writeGraph(ctx context.Context, bundle Bundle, docKey string, entities []Entity, relations []Relation) error {
	if p.graph == nil {
		return fmt.Errorf("no graph writer configured")
	}
	if err := p.graph.CreateDocumentNode(ctx, bundle.DocumentID, bundle.Name, "drawing", bundle.ProjectID, nil); err != nil {
		return fmt.Errorf("create document node: %w", err)
	}

	ids := map[string]string{docKey: bundle.DocumentID}
	for _, e := range entities {
		id := entityNodeID(bundle.DocumentID, e)
		ids[e.Key] = id
		var err error
		switch e.Kind {
		case KindComponent:
			err = p.graph.CreateComponent(ctx, id, bundle.DocumentID, map[string]any{
				"code": e.Code, "component_type": string(e.ComponentType), "source": e.Source,
			})
		case KindMaterial:
			err = p.graph.CreateMaterial(ctx, id, bundle.DocumentID, map[string]any{
				"grade": e.Grade, "material_type": e.MaterialKind, "source": e.Source,
			})
		case KindSpecification:
			err = p.graph.CreateSpecification(ctx, id, bundle.DocumentID, map[string]any{
				"code": e.Code, "source": e.Source,
			})
		case KindDimension:
			err = p.graph.CreateDimension(ctx, id, bundle.DocumentID, map[string]any{
				"dim_type": e.DimType, "value": e.Value, "unit": e.Unit, "source": e.Source,
			})
		}
		if err != nil {
			return fmt.Errorf("create %s %q: %w", e.Kind, e.Key, err)
		}
	}

	for _, rel := range relations {
		if rel.Type == "BELONGS_TO" {
			// Already created alongside each entity node.
			continue
		}
		fromID, okFrom := ids[rel.FromKey]
		toID, okTo := ids[rel.ToKey]
		if !okFrom || !okTo {
			continue
		}
		if err := p.graph.CreateRelation(ctx, rel.Type, fromID, toID, nil); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"rel": rel.Type, "from": rel.FromKey, "to": rel.ToKey,
			}).Warn("drawing: relation create failed, continuing")
		}
	}
	return nil
}

// entityNodeID derives the stable graph node id for an entity within its
// document, the idempotency key for re-processing.
func entityNodeID(docID string, e Entity) string {
	return docID + ":" + string(e.Kind) + ":" + e.Key
}

// advance bumps progress (never backwards), checkpoints the record, and
// publishes a step event.
func (p *Processor) advance(ctx context.Context, rec *Record, step string, progress int) {
	if progress > rec.Progress {
		rec.Progress = progress
	}
	p.checkpoint(ctx, rec, step)
}

func (p *Processor) checkpoint(ctx context.Context, rec *Record, step string) {
	rec.UpdatedAt = p.now().UTC()
	if p.store != nil {
		if err := p.store.SaveRecord(ctx, *rec); err != nil {
			p.log.WithError(err).WithField("doc_id", rec.DocumentID).Warn("drawing: checkpoint write failed")
		}
	}
	if p.events != nil {
		ev := Event{
			DocumentID: rec.DocumentID,
			Step:       step,
			Status:     rec.Status,
			Progress:   rec.Progress,
			Timestamp:  rec.UpdatedAt,
		}
		if err := p.events.Publish(ctx, ev); err != nil {
			p.log.WithError(err).WithField("doc_id", rec.DocumentID).Warn("drawing: event publish failed")
		}
	}
}

func appendErr(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}

func textSample(pages []string, budget int) string {
	var sb []byte
	for _, page := range pages {
		if len(sb) >= budget {
			break
		}
		if len(sb)+len(page) > budget {
			sb = append(sb, page[:budget-len(sb)]...)
			break
		}
		sb = append(sb, page...)
		sb = append(sb, '\n')
	}
	return string(sb)
}
