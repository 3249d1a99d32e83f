package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Node labels and edge types named in the data model: Document,
// Component, Material, Specification, Dimension nodes; BELONGS_TO,
// USES_MATERIAL, HAS_DIMENSION, REFERS_TO, CONNECTED_TO edges.
const (
	LabelDocument      = "Document"
	LabelComponent     = "Component"
	LabelMaterial      = "Material"
	LabelSpecification = "Specification"
	LabelDimension     = "Dimension"

	RelBelongsTo    = "BELONGS_TO"
	RelUsesMaterial = "USES_MATERIAL"
	RelHasDimension = "HAS_DIMENSION"
	RelRefersTo     = "REFERS_TO"
	RelConnectedTo  = "CONNECTED_TO"
)

// Executor is the subset of Client the repository depends on, so tests can
// substitute an in-memory fake instead of a live graph database.
type Executor interface {
	ExecuteQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (WriteSummary, error)
}

// Repository implements the construction knowledge-graph operations named
// over the raw client: entity creation with owning-document edges, typed relation
// creation, a component's full relation fan-out, and cascade delete.
type Repository struct {
	client Executor
}

// NewRepository wraps an already-connected Client (or a test Executor).
func NewRepository(client Executor) *Repository {
	return &Repository{client: client}
}

// CreateDocumentNode creates or updates the Document root node.
func (r *Repository) CreateDocumentNode(ctx context.Context, docID, name, docType, projectID string, props map[string]any) error {
	params := mergeProps(map[string]any{
		"id":         docID,
		"name":       name,
		"doc_type":   docType,
		"project_id": projectID,
	}, props)
	_, err := r.client.ExecuteWrite(ctx, `
		MERGE (d:`+LabelDocument+` {id: $id})
		SET d += $props
	`, map[string]any{"id": docID, "props": params})
	if err != nil {
		return fmt.Errorf("create document node %s: %w", docID, err)
	}
	return nil
}

// createEntity creates a node of label with the given id and properties,
// and a BELONGS_TO edge to its owning Document. Used by CreateComponent,
// CreateMaterial, CreateSpecification, and CreateDimension.
func (r *Repository) createEntity(ctx context.Context, label, id, documentID string, props map[string]any) error {
	params := mergeProps(map[string]any{"id": id}, props)
	cypher := fmt.Sprintf(`
		MATCH (d:%s {id: $documentId})
		MERGE (n:%s {id: $id})
		SET n += $props
		MERGE (n)-[:%s]->(d)
	`, LabelDocument, label, RelBelongsTo)
	_, err := r.client.ExecuteWrite(ctx, cypher, map[string]any{
		"documentId": documentID,
		"id":         id,
		"props":      params,
	})
	if err != nil {
		return fmt.Errorf("create %s node %s: %w", label, id, err)
	}
	return nil
}

// CreateComponent creates a Component node (code, component_type, ...)
// owned by documentID.
func (r *Repository) CreateComponent(ctx context.Context, id, documentID string, props map[string]any) error {
	return r.createEntity(ctx, LabelComponent, id, documentID, props)
}

// CreateMaterial creates a Material node (material_type, grade, ...) owned
// by documentID.
func (r *Repository) CreateMaterial(ctx context.Context, id, documentID string, props map[string]any) error {
	return r.createEntity(ctx, LabelMaterial, id, documentID, props)
}

// CreateSpecification creates a Specification node (code, ...) owned by
// documentID.
func (r *Repository) CreateSpecification(ctx context.Context, id, documentID string, props map[string]any) error {
	return r.createEntity(ctx, LabelSpecification, id, documentID, props)
}

// CreateDimension creates a Dimension node (dim_type, value, unit, ...)
// owned by documentID.
func (r *Repository) CreateDimension(ctx context.Context, id, documentID string, props map[string]any) error {
	return r.createEntity(ctx, LabelDimension, id, documentID, props)
}

// CreateRelation creates a directed edge of relType between two
// already-existing entities identified by their id property. relType must
// be one of USES_MATERIAL, HAS_DIMENSION, REFERS_TO, CONNECTED_TO or
// BELONGS_TO; the create_* entity methods already create each entity's
// BELONGS_TO edge implicitly.
func (r *Repository) CreateRelation(ctx context.Context, relType, fromID, toID string, props map[string]any) error {
	if !isValidRelType(relType) {
		return fmt.Errorf("invalid relation type %q", relType)
	}
	cypher := fmt.Sprintf(`
		MATCH (a {id: $fromId}), (b {id: $toId})
		MERGE (a)-[rel:%s]->(b)
		SET rel += $props
	`, relType)
	_, err := r.client.ExecuteWrite(ctx, cypher, map[string]any{
		"fromId": fromID,
		"toId":   toID,
		"props":  props,
	})
	if err != nil {
		return fmt.Errorf("create %s relation %s->%s: %w", relType, fromID, toID, err)
	}
	return nil
}

func isValidRelType(relType string) bool {
	switch relType {
	case RelUsesMaterial, RelHasDimension, RelRefersTo, RelConnectedTo, RelBelongsTo:
		return true
	default:
		return false
	}
}

// ComponentDetail is the fan-out returned by GetComponentWithRelations.
type ComponentDetail struct {
	Component            map[string]any
	Materials             []map[string]any
	Dimensions            []map[string]any
	Specifications        []map[string]any
	ConnectedComponents   []map[string]any
}

// GetComponentWithRelations returns the center component plus every
// material, dimension, specification, and connected component reachable by
// one hop of the relevant relation type.
func (r *Repository) GetComponentWithRelations(ctx context.Context, id string) (*ComponentDetail, error) {
	rows, err := r.client.ExecuteQuery(ctx, `
		MATCH (c:`+LabelComponent+` {id: $id})
		OPTIONAL MATCH (c)-[:`+RelUsesMaterial+`]->(m:`+LabelMaterial+`)
		OPTIONAL MATCH (c)-[:`+RelHasDimension+`]->(dim:`+LabelDimension+`)
		OPTIONAL MATCH (c)-[:`+RelRefersTo+`]->(spec:`+LabelSpecification+`)
		OPTIONAL MATCH (c)-[:`+RelConnectedTo+`]->(other:`+LabelComponent+`)
		RETURN c, collect(DISTINCT m) AS materials, collect(DISTINCT dim) AS dimensions,
		       collect(DISTINCT spec) AS specifications, collect(DISTINCT other) AS connected
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get component %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &ComponentDetail{
		Component:           asPropsMap(row["c"]),
		Materials:           asPropsMapSlice(row["materials"]),
		Dimensions:          asPropsMapSlice(row["dimensions"]),
		Specifications:      asPropsMapSlice(row["specifications"]),
		ConnectedComponents: asPropsMapSlice(row["connected"]),
	}, nil
}

// DeleteDocumentAndRelations cascades: every node owned by docID via
// BELONGS_TO, and docID itself, is detached and deleted along with their
// outgoing and incoming edges.
func (r *Repository) DeleteDocumentAndRelations(ctx context.Context, docID string) error {
	_, err := r.client.ExecuteWrite(ctx, `
		MATCH (d:`+LabelDocument+` {id: $id})
		OPTIONAL MATCH (n)-[:`+RelBelongsTo+`]->(d)
		DETACH DELETE n, d
	`, map[string]any{"id": docID})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	return nil
}

// EntityMatch is one candidate returned by FindEntities, with a match
// precision score for the graph retriever's entity-linking rank.
type EntityMatch struct {
	ID         string
	Label      string
	Props      map[string]any
	Precision  float64
}

// FindEntities looks up nodes of label whose field case-insensitively
// equals (exact) or contains (keyword) value, optionally scoped to docID.
// Exact matches score 0.9, keyword matches score 0.7, matching the ranking
// rule the graph retriever's entity lookup step applies.
func (r *Repository) FindEntities(ctx context.Context, label, field, value, docID string) ([]EntityMatch, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE toLower(n.%s) = toLower($value)
		   OR toLower(n.%s) CONTAINS toLower($value)
	`, label, field, field)
	params := map[string]any{"value": value}
	if docID != "" {
		cypher += fmt.Sprintf(`
		MATCH (n)-[:%s]->(:%s {id: $docId})`, RelBelongsTo, LabelDocument)
		params["docId"] = docID
	}
	cypher += " RETURN n"
	rows, err := r.client.ExecuteQuery(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("find entities label=%s field=%s: %w", label, field, err)
	}
	out := make([]EntityMatch, 0, len(rows))
	for _, row := range rows {
		props := asPropsMap(row["n"])
		precision := 0.7
		if fv, ok := props[field].(string); ok && equalFold(fv, value) {
			precision = 0.9
		}
		id, _ := props["id"].(string)
		out = append(out, EntityMatch{ID: id, Label: label, Props: props, Precision: precision})
	}
	return out, nil
}

// RelatedNode is one hop reached by ExpandRelations, tagged with the edge
// type and hop distance from the center node.
type RelatedNode struct {
	ID       string
	Label    string
	Props    map[string]any
	RelType  string
	Distance int
}

// ExpandRelations walks outgoing typed edges from id out to maxDepth hops
// and returns at most maxDepth*fanoutCap distinct nodes, nearest first, so
// a densely connected node can't blow up the traversal. maxDepth<=0
// defaults to 1 and fanoutCap<=0 defaults to 20.
func (r *Repository) ExpandRelations(ctx context.Context, id string, maxDepth, fanoutCap int) ([]RelatedNode, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if fanoutCap <= 0 {
		fanoutCap = 20
	}
	cypher := fmt.Sprintf(`
		MATCH (start {id: $id})
		MATCH path = (start)-[rels*1..%d]->(n)
		WHERE n.id IS NOT NULL
		WITH n, rels, length(path) AS dist
		RETURN DISTINCT n, rels[-1] AS lastRel, dist
		ORDER BY dist ASC
		LIMIT %d
	`, maxDepth, maxDepth*fanoutCap)
	rows, err := r.client.ExecuteQuery(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("expand relations from %s: %w", id, err)
	}
	out := make([]RelatedNode, 0, len(rows))
	for _, row := range rows {
		props := asPropsMap(row["n"])
		if props == nil {
			continue
		}
		nodeID, _ := props["id"].(string)
		dist := 1
		if d, ok := row["dist"].(int64); ok {
			dist = int(d)
		} else if d, ok := row["dist"].(int); ok {
			dist = d
		}
		relType, _ := row["lastRel"].(string)
		if rel, ok := row["lastRel"].(neo4j.Relationship); ok {
			relType = rel.Type
		}
		out = append(out, RelatedNode{
			ID:       nodeID,
			Label:    labelOf(props),
			Props:    props,
			RelType:  relType,
			Distance: dist,
		})
	}
	return out, nil
}

// labelOf recovers a node's primary domain label from its properties when
// the driver doesn't surface neo4j.Node.Labels directly (as with the fake
// Executor used in tests, which only ever carries props).
func labelOf(props map[string]any) string {
	if l, ok := props["component_type"]; ok && l != nil {
		return LabelComponent
	}
	if l, ok := props["material_type"]; ok && l != nil {
		return LabelMaterial
	}
	if l, ok := props["dim_type"]; ok && l != nil {
		return LabelDimension
	}
	if l, ok := props["doc_type"]; ok && l != nil {
		return LabelDocument
	}
	return LabelSpecification
}

// RelatedDocuments returns every Document reachable from the given entity
// ids via BELONGS_TO, ranked by how many of the input ids point at each
// document (its incidence count), highest first. Used to surface the
// source documents backing a set of linked entities.
func (r *Repository) RelatedDocuments(ctx context.Context, entityIDs []string) ([]EntityMatch, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := r.client.ExecuteQuery(ctx, `
		MATCH (n)-[:`+RelBelongsTo+`]->(d:`+LabelDocument+`)
		WHERE n.id IN $ids
		WITH d, count(DISTINCT n) AS incidence
		RETURN d, incidence
		ORDER BY incidence DESC
	`, map[string]any{"ids": entityIDs})
	if err != nil {
		return nil, fmt.Errorf("related documents for %d entities: %w", len(entityIDs), err)
	}
	out := make([]EntityMatch, 0, len(rows))
	for _, row := range rows {
		props := asPropsMap(row["d"])
		if props == nil {
			continue
		}
		id, _ := props["id"].(string)
		incidence := 1.0
		switch v := row["incidence"].(type) {
		case int64:
			incidence = float64(v)
		case int:
			incidence = float64(v)
		case float64:
			incidence = v
		}
		out = append(out, EntityMatch{ID: id, Label: LabelDocument, Props: props, Precision: incidence})
	}
	return out, nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func mergeProps(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// asPropsMap adapts a neo4j.Node (or nil) value returned in a result row
// into a plain property map, so callers outside this package never import
// the driver's node type directly. A plain map is accepted as-is, which
// lets tests drive the repository with a fake Executor that skips the
// driver's node wrapper entirely.
func asPropsMap(v any) map[string]any {
	switch t := v.(type) {
	case neo4j.Node:
		return t.Props
	case map[string]any:
		return t
	default:
		return nil
	}
}

func asPropsMapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if p := asPropsMap(it); p != nil {
			out = append(out, p)
		}
	}
	return out
}
