package retrieve

import (
	"fmt"
	"strings"

	"ragengine/internal/graphretrieve"
	"ragengine/internal/persistence/graphstore"
)

// enhanceWithGraphContext walks the graph hits and attaches each hit's
// rendered context to any fused candidate whose text mentions the hit's
// entity value, or transitively any of its relations' target values. The
// first candidate additionally gets a global summary aggregating the top
// three entities per type.
func enhanceWithGraphContext(cands []Candidate, graphHits []graphretrieve.Hit) {
	if len(cands) == 0 || len(graphHits) == 0 {
		return
	}
	for _, hit := range graphHits {
		if hit.Text == "" {
			continue
		}
		mentions := entityMentions(hit)
		for i := range cands {
			if cands[i].GraphContext != "" || cands[i].Text == "" {
				continue
			}
			if mentionsAny(cands[i].Text, mentions) {
				cands[i].GraphContext = hit.Text
			}
		}
	}
	cands[0].GlobalGraphContext = globalSummary(graphHits)
}

// entityMentions collects the strings whose presence in a chunk means the
// chunk talks about this hit: the entity's own value plus every relation
// target's value.
func entityMentions(hit graphretrieve.Hit) []string {
	var out []string
	if v := displayValue(hit.Entity.Props); v != "" {
		out = append(out, v)
	}
	for _, rel := range hit.Relations {
		if v := displayValue(rel.Props); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func mentionsAny(text string, values []string) bool {
	for _, v := range values {
		if strings.Contains(text, v) {
			return true
		}
	}
	return false
}

// displayValue picks the human-facing identifier for a node's props,
// preferring the variant-specific field.
func displayValue(props map[string]any) string {
	for _, key := range []string{"code", "grade", "value", "id"} {
		if v, ok := props[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// globalSummary aggregates the top three entities per variant into one
// sentence per type, in a fixed label order so the summary is stable.
func globalSummary(hits []graphretrieve.Hit) string {
	byLabel := map[string][]string{}
	for _, h := range hits {
		v := displayValue(h.Entity.Props)
		if v == "" {
			continue
		}
		if len(byLabel[h.Entity.Label]) < 3 {
			byLabel[h.Entity.Label] = append(byLabel[h.Entity.Label], v)
		}
	}
	var parts []string
	for _, label := range []string{
		graphstore.LabelComponent,
		graphstore.LabelMaterial,
		graphstore.LabelSpecification,
		graphstore.LabelDimension,
	} {
		if vals := byLabel[label]; len(vals) > 0 {
			parts = append(parts, fmt.Sprintf("%ss: %s", strings.ToLower(label), strings.Join(vals, ", ")))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Related graph knowledge - " + strings.Join(parts, "; ") + "."
}
