package drawing

import "sort"

// Entity is one candidate extracted from drawing text, before dedup.
type Entity struct {
	Kind          EntityKind
	Key           string // dedup collision key: code / grade / code / "type:value"
	Code          string
	ComponentType ComponentType
	Grade         string
	MaterialKind  string
	DimType       string
	Value         string
	Unit          string
	Source        string // rule, table, llm
}

// ExtractBasic runs the regex pattern set over one page or cell's text,
// tagging every hit with its source ("rule" for page text, "table" for
// table cells).
func ExtractBasic(text, source string) []Entity {
	var out []Entity
	for _, cp := range componentPatterns {
		for _, m := range cp.re.FindAllString(text, -1) {
			out = append(out, Entity{Kind: KindComponent, Key: m, Code: m, ComponentType: cp.componentType, Source: source})
		}
	}
	for _, m := range concreteGradeRe.FindAllString(text, -1) {
		out = append(out, Entity{Kind: KindMaterial, Key: m, Grade: m, MaterialKind: "concrete", Source: source})
	}
	for _, m := range rebarGradeRe.FindAllString(text, -1) {
		out = append(out, Entity{Kind: KindMaterial, Key: m, Grade: m, MaterialKind: "rebar", Source: source})
	}
	for _, m := range steelGradeRe.FindAllString(text, -1) {
		out = append(out, Entity{Kind: KindMaterial, Key: m, Grade: m, MaterialKind: "steel", Source: source})
	}
	for _, m := range specCodeRe.FindAllString(text, -1) {
		out = append(out, Entity{Kind: KindSpecification, Key: m, Code: m, Source: source})
	}
	for _, m := range sectionDimRe.FindAllString(text, -1) {
		out = append(out, Entity{Kind: KindDimension, Key: "section:" + m, DimType: "section", Value: m, Source: source})
	}
	for _, m := range namedDimRe.FindAllStringSubmatch(text, -1) {
		dimType := normalizeDimType(m[1])
		value := m[2]
		unit := m[3]
		out = append(out, Entity{Kind: KindDimension, Key: dimType + ":" + value, DimType: dimType, Value: value, Unit: unit, Source: source})
	}
	return out
}

func normalizeDimType(raw string) string {
	switch raw {
	case "厚度", "thickness":
		return "thickness"
	case "高度", "height":
		return "height"
	case "宽度", "width":
		return "width"
	case "跨度", "span":
		return "span"
	case "间距", "spacing":
		return "spacing"
	default:
		return raw
	}
}

// Dedup collapses entities sharing (Kind, Key), keeping the first
// occurrence (rule output wins over table output ties since basic
// extraction runs first), matching step 4's collision-key rule.
func Dedup(entities []Entity) []Entity {
	seen := map[string]bool{}
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		k := string(e.Kind) + "|" + e.Key
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Relation is one inferred edge between two entity keys (or a synthetic
// "Document" key for document-scoped edges).
type Relation struct {
	Type     string
	FromKey  string
	ToKey    string
}

// InferRelations implements step 5: component-material allow-listing,
// component-dimension co-occurrence, Document REFERS_TO every spec, every
// entity BELONGS_TO the document, and same-floor CONNECTED_TO by type
// rule. floor co-occurrence is approximated here as "same document", since
// this spec's drawing bundle is one document per floor sheet.
func InferRelations(docKey string, entities []Entity) []Relation {
	var rels []Relation
	components := filterKind(entities, KindComponent)
	materials := filterKind(entities, KindMaterial)
	dimensions := filterKind(entities, KindDimension)
	specs := filterKind(entities, KindSpecification)

	for _, e := range entities {
		rels = append(rels, Relation{Type: "BELONGS_TO", FromKey: e.Key, ToKey: docKey})
	}
	for _, s := range specs {
		rels = append(rels, Relation{Type: "REFERS_TO", FromKey: docKey, ToKey: s.Key})
	}
	for _, c := range components {
		allowed := componentAllowedMaterials[c.ComponentType]
		for _, m := range materials {
			if containsStr(allowed, m.MaterialKind) {
				rels = append(rels, Relation{Type: "USES_MATERIAL", FromKey: c.Key, ToKey: m.Key})
			}
		}
		for _, d := range dimensions {
			rels = append(rels, Relation{Type: "HAS_DIMENSION", FromKey: c.Key, ToKey: d.Key})
		}
	}
	for _, pair := range connectedToRules {
		for _, a := range filterComponentType(components, pair[0]) {
			for _, b := range filterComponentType(components, pair[1]) {
				if a.Key == b.Key {
					continue
				}
				rels = append(rels, Relation{Type: "CONNECTED_TO", FromKey: a.Key, ToKey: b.Key})
			}
		}
	}
	return rels
}

func filterKind(entities []Entity, kind EntityKind) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func filterComponentType(components []Entity, t ComponentType) []Entity {
	var out []Entity
	for _, c := range components {
		if c.ComponentType == t {
			out = append(out, c)
		}
	}
	return out
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
