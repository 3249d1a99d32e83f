// Package drawing implements the drawing knowledge extractor: regex
// entity extraction over page text and tables, dedup, relation inference,
// and idempotent graph writes, run as a linear state machine with a
// checkpoint after every step.
package drawing

import "regexp"

// EntityKind names the extracted entity variant.
type EntityKind string

const (
	KindComponent     EntityKind = "component"
	KindMaterial      EntityKind = "material"
	KindSpecification EntityKind = "specification"
	KindDimension     EntityKind = "dimension"
)

// ComponentType is the structural role inferred from a component code's
// pattern.
type ComponentType string

const (
	ComponentBeam       ComponentType = "beam"
	ComponentColumn     ComponentType = "column"
	ComponentSlab       ComponentType = "slab"
	ComponentWall       ComponentType = "wall"
	ComponentFoundation ComponentType = "foundation"
)

// componentPattern pairs a code regex with the structural type it implies.
type componentPattern struct {
	re            *regexp.Regexp
	componentType ComponentType
}

// componentPatterns mirrors the original's per-type code conventions:
// beam KL/L/KDL-prefixed, column KZ, slab LB, wall Q, foundation J/JC.
var componentPatterns = []componentPattern{
	{regexp.MustCompile(`\b([KDL]{1,3}-?\d+[A-Za-z]?)\b`), ComponentBeam},
	{regexp.MustCompile(`\b(KZ-?\d+[A-Za-z]?)\b`), ComponentColumn},
	{regexp.MustCompile(`\b(LB-?\d+[A-Za-z]?)\b`), ComponentSlab},
	{regexp.MustCompile(`\b(Q-?\d+[A-Za-z]?)\b`), ComponentWall},
	{regexp.MustCompile(`\b(J[CZ]?-?\d+[A-Za-z]?)\b`), ComponentFoundation},
}

var (
	concreteGradeRe = regexp.MustCompile(`\bC\d{2,3}\b`)
	rebarGradeRe    = regexp.MustCompile(`\bHRB\d{3}E?\b`)
	steelGradeRe    = regexp.MustCompile(`\bQ\d{3}[A-Z]?\b`)

	specCodeRe = regexp.MustCompile(`\b(?:GB|JGJ|CECS|DB\d{2})\s*/?\s*T?\s*\d{4,6}-\d{4}\b`)

	sectionDimRe  = regexp.MustCompile(`\b\d{2,4}[xX×]\d{2,4}\b`)
	namedDimRe    = regexp.MustCompile(`(厚度|高度|宽度|跨度|间距|thickness|height|width|span|spacing)\s*[:：]?\s*(\d+(?:\.\d+)?)\s*(mm|m|米|毫米)?`)
)

// Component relation rules: which material kinds a component type may use,
// keyed for relation inference step 5.
var componentAllowedMaterials = map[ComponentType][]string{
	ComponentBeam:       {"concrete", "rebar"},
	ComponentColumn:     {"concrete", "rebar"},
	ComponentSlab:       {"concrete", "rebar"},
	ComponentWall:       {"concrete", "rebar", "steel"},
	ComponentFoundation: {"concrete", "rebar"},
}

// connectedToRules names the component-type pairs eligible for a
// same-floor CONNECTED_TO edge.
var connectedToRules = [][2]ComponentType{
	{ComponentBeam, ComponentColumn},
	{ComponentSlab, ComponentBeam},
}

func materialKind(grade string) string {
	switch {
	case concreteGradeRe.MatchString(grade):
		return "concrete"
	case rebarGradeRe.MatchString(grade):
		return "rebar"
	case steelGradeRe.MatchString(grade):
		return "steel"
	default:
		return ""
	}
}
