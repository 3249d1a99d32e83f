// Package graphretrieve is the graph-sourced retrieval channel fed into
// hybrid fusion: entity linking from query text, case-insensitive lookup
// against the graph store, relation expansion, related-document lookup,
// and natural-language context rendering. Entity linking reuses the
// drawing extractor's pattern set, and any graph-store failure degrades to
// an empty result so retrieval as a whole never fails on this channel.
package graphretrieve

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"ragengine/internal/drawing"
	"ragengine/internal/persistence/graphstore"
)

// Repository is the subset of graphstore.Repository this package depends
// on, so tests can substitute a fake without a live Neo4j instance.
type Repository interface {
	FindEntities(ctx context.Context, label, field, value, docID string) ([]graphstore.EntityMatch, error)
	ExpandRelations(ctx context.Context, id string, maxDepth, fanoutCap int) ([]graphstore.RelatedNode, error)
	RelatedDocuments(ctx context.Context, entityIDs []string) ([]graphstore.EntityMatch, error)
}

// Options configures one Search call. Zero values fall back to defaults.
type Options struct {
	TopK          int
	MaxEntities   int // default 5
	RelationDepth int // default 2
	FanoutCap     int // default 20
	RelatedLimit  int // default 5, caps related_entities per hit
	DocID         string
	ContextBudget int // default 500, max rendered chars across all hits
}

// Hit is one graph-sourced retrieval record: the matched entity, its
// expanded relations and related entities, the rendered context sentence,
// and a match-precision score.
type Hit struct {
	Entity          graphstore.EntityMatch
	Relations       []graphstore.RelatedNode
	RelatedEntities []graphstore.EntityMatch
	Text            string
	Score           float64
	Source          string
}

// Retriever wraps a Repository with the keyword table used for entity
// linking beyond the code-pattern matches.
type Retriever struct {
	repo Repository
	log  *logrus.Logger
}

// New constructs a Retriever over repo. A nil repo is accepted so a
// retriever can be wired up before the graph store connects; Search simply
// degrades to empty in that case, matching the availability contract.
func New(repo Repository, log *logrus.Logger) *Retriever {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Retriever{repo: repo, log: log}
}

// candidate is one entity-linking hit before lookup, tagged with the node
// label and field it should be queried against.
type candidate struct {
	kind  string
	value string
	label string
	field string
}

// keywordTable maps domain vocabulary terms to the field they identify,
// supplementing the code-pattern regexes with plain-language mentions of
// component and material kinds.
var keywordTable = map[string]struct{ label, field string }{
	"concrete": {graphstore.LabelMaterial, "material_type"},
	"混凝土":     {graphstore.LabelMaterial, "material_type"},
	"rebar":    {graphstore.LabelMaterial, "material_type"},
	"钢筋":      {graphstore.LabelMaterial, "material_type"},
	"steel":    {graphstore.LabelMaterial, "material_type"},
	"钢材":      {graphstore.LabelMaterial, "material_type"},
	"beam":     {graphstore.LabelComponent, "component_type"},
	"梁":       {graphstore.LabelComponent, "component_type"},
	"column":   {graphstore.LabelComponent, "component_type"},
	"柱":       {graphstore.LabelComponent, "component_type"},
	"slab":     {graphstore.LabelComponent, "component_type"},
	"板":       {graphstore.LabelComponent, "component_type"},
	"wall":     {graphstore.LabelComponent, "component_type"},
	"墙":       {graphstore.LabelComponent, "component_type"},
	"foundation": {graphstore.LabelComponent, "component_type"},
	"基础":        {graphstore.LabelComponent, "component_type"},
}

var keywordTokenRe = regexp.MustCompile(`[\p{Han}]|[A-Za-z]+`)

// linkEntities extracts candidate entities from the query: component
// codes, material grades, standard codes, and dimension tokens via the
// shared regex set, plus domain-vocabulary keywords, deduped by
// (kind,value) and capped at maxEntities.
func linkEntities(query string, maxEntities int) []candidate {
	if maxEntities <= 0 {
		maxEntities = 5
	}
	seen := map[string]bool{}
	var out []candidate
	add := func(c candidate) {
		key := c.kind + "|" + strings.ToLower(c.value)
		if seen[key] || len(out) >= maxEntities {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	for _, e := range drawing.ExtractBasic(query, "query") {
		switch e.Kind {
		case drawing.KindComponent:
			add(candidate{kind: "component", value: e.Code, label: graphstore.LabelComponent, field: "code"})
		case drawing.KindMaterial:
			add(candidate{kind: "material", value: e.Grade, label: graphstore.LabelMaterial, field: "grade"})
		case drawing.KindSpecification:
			add(candidate{kind: "specification", value: e.Code, label: graphstore.LabelSpecification, field: "code"})
		case drawing.KindDimension:
			add(candidate{kind: "dimension", value: e.Value, label: graphstore.LabelDimension, field: "value"})
		}
	}

	for _, tok := range keywordTokenRe.FindAllString(query, -1) {
		if kw, ok := keywordTable[strings.ToLower(tok)]; ok {
			add(candidate{kind: "keyword", value: tok, label: kw.label, field: kw.field})
		}
	}

	return out
}

// Result is the full channel output: ranked hits plus the
// related-documents lookup, surfaced separately since it's keyed on the
// whole linked-entity set rather than any single hit.
type Result struct {
	Hits      []Hit
	Documents []graphstore.EntityMatch
}

// Search runs the full retrieval algorithm and never returns an error:
// any repository failure (including a nil/unreachable graph store) is
// logged and yields an empty result.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) Result {
	if r.repo == nil {
		r.log.Debug("graphretrieve: no repository configured, returning empty")
		return Result{}
	}
	if strings.TrimSpace(query) == "" {
		return Result{}
	}
	maxEntities := opts.MaxEntities
	if maxEntities <= 0 {
		maxEntities = 5
	}
	relationDepth := opts.RelationDepth
	if relationDepth <= 0 {
		relationDepth = 2
	}
	fanoutCap := opts.FanoutCap
	if fanoutCap <= 0 {
		fanoutCap = 20
	}
	relatedLimit := opts.RelatedLimit
	if relatedLimit <= 0 {
		relatedLimit = 5
	}
	budget := opts.ContextBudget
	if budget <= 0 {
		budget = 500
	}

	candidates := linkEntities(query, maxEntities)
	if len(candidates) == 0 {
		return Result{}
	}

	var hits []Hit
	var allEntityIDs []string
	for _, c := range candidates {
		matches, err := r.repo.FindEntities(ctx, c.label, c.field, c.value, opts.DocID)
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"label": c.label, "field": c.field}).
				Warn("graphretrieve: entity lookup failed, skipping candidate")
			continue
		}
		for _, m := range matches {
			relations, err := r.repo.ExpandRelations(ctx, m.ID, relationDepth, fanoutCap)
			if err != nil {
				r.log.WithError(err).WithField("entity_id", m.ID).Warn("graphretrieve: relation expansion failed")
				relations = nil
			}
			related := relatedEntityMatches(relations, relatedLimit)

			hits = append(hits, Hit{
				Entity:          m,
				Relations:       relations,
				RelatedEntities: related,
				Score:           m.Precision,
				Source:          "graph",
			})
			allEntityIDs = append(allEntityIDs, m.ID)
		}
	}
	if len(hits) == 0 {
		return Result{}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if opts.TopK > 0 && len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}

	var relatedDocs []graphstore.EntityMatch
	if docs, err := r.repo.RelatedDocuments(ctx, allEntityIDs); err != nil {
		r.log.WithError(err).Warn("graphretrieve: related documents lookup failed")
	} else {
		relatedDocs = docs
	}

	renderContexts(hits, budget)
	return Result{Hits: hits, Documents: relatedDocs}
}

// relatedEntityMatches flattens ExpandRelations' RelatedNode list into the
// EntityMatch shape callers compare hits against, capped at limit.
func relatedEntityMatches(relations []graphstore.RelatedNode, limit int) []graphstore.EntityMatch {
	out := make([]graphstore.EntityMatch, 0, len(relations))
	for _, rel := range relations {
		if len(out) >= limit {
			break
		}
		out = append(out, graphstore.EntityMatch{ID: rel.ID, Label: rel.Label, Props: rel.Props})
	}
	return out
}

// renderContexts implements step 5: each hit gets one sentence per the
// fixed template for its entity variant, and the running total across all
// hits is truncated to budget characters (truncating a hit's own text
// rather than dropping whole hits once the budget is exhausted).
func renderContexts(hits []Hit, budget int) {
	remaining := budget
	for i := range hits {
		if remaining <= 0 {
			hits[i].Text = ""
			continue
		}
		text := renderEntitySentence(hits[i])
		if len(text) > remaining {
			text = text[:remaining]
		}
		hits[i].Text = text
		remaining -= len(text)
	}
}

// renderEntitySentence builds the fixed-template sentence for one hit,
// e.g. "Component `KL-1` is a
// beam. Uses material `C30`. Section is 300x500mm. Refers to
// `GB50010-2010`."
func renderEntitySentence(h Hit) string {
	props := h.Entity.Props
	var sb strings.Builder
	switch h.Entity.Label {
	case graphstore.LabelComponent:
		code, _ := props["code"].(string)
		ctype, _ := props["component_type"].(string)
		fmt.Fprintf(&sb, "Component `%s`", code)
		if ctype != "" {
			fmt.Fprintf(&sb, " is a %s.", ctype)
		} else {
			sb.WriteString(".")
		}
	case graphstore.LabelMaterial:
		grade, _ := props["grade"].(string)
		mkind, _ := props["material_type"].(string)
		fmt.Fprintf(&sb, "Material `%s`", grade)
		if mkind != "" {
			fmt.Fprintf(&sb, " is %s.", mkind)
		} else {
			sb.WriteString(".")
		}
	case graphstore.LabelSpecification:
		code, _ := props["code"].(string)
		fmt.Fprintf(&sb, "Specification `%s`.", code)
	case graphstore.LabelDimension:
		dimType, _ := props["dim_type"].(string)
		value, _ := props["value"].(string)
		unit, _ := props["unit"].(string)
		fmt.Fprintf(&sb, "Dimension %s is %s%s.", dimType, value, unit)
	default:
		id, _ := props["id"].(string)
		fmt.Fprintf(&sb, "Entity `%s`.", id)
	}

	for _, rel := range h.Relations {
		switch rel.RelType {
		case graphstore.RelUsesMaterial:
			if grade, ok := rel.Props["grade"].(string); ok && grade != "" {
				fmt.Fprintf(&sb, " Uses material `%s`.", grade)
			}
		case graphstore.RelHasDimension:
			if v, ok := rel.Props["value"].(string); ok && v != "" {
				dimType, _ := rel.Props["dim_type"].(string)
				unit, _ := rel.Props["unit"].(string)
				fmt.Fprintf(&sb, " Section is %s%s%s.", v, unit, dimSuffix(dimType))
			}
		case graphstore.RelRefersTo:
			if code, ok := rel.Props["code"].(string); ok && code != "" {
				fmt.Fprintf(&sb, " Refers to `%s`.", code)
			}
		}
	}
	return sb.String()
}

func dimSuffix(dimType string) string {
	if dimType == "" || dimType == "section" {
		return ""
	}
	return " (" + dimType + ")"
}
