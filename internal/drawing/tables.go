package drawing

import (
	"strconv"
	"strings"
)

// Table is one parsed drawing table: a header row plus data cells, as the
// upstream parser emits them.
type Table struct {
	Header []string
	Rows   [][]string
}

// materialHeaderHints and componentHeaderHints are the header keywords that
// classify a table before the regex pass runs over its cells. A classified
// table contributes only its own entity kind (a material schedule yields
// materials, a component schedule yields components and their dimensions);
// unclassified tables
// are scanned for everything.
var (
	materialHeaderHints  = []string{"材料", "混凝土", "钢筋", "material", "concrete", "rebar"}
	componentHeaderHints = []string{"构件", "梁", "柱", "component", "beam", "column"}
)

func classifyTable(header []string) string {
	joined := strings.ToLower(strings.Join(header, " "))
	for _, h := range materialHeaderHints {
		if strings.Contains(joined, h) {
			return "material"
		}
	}
	for _, h := range componentHeaderHints {
		if strings.Contains(joined, h) {
			return "component"
		}
	}
	return ""
}

// ExtractFromTables re-runs the pattern set over each table's concatenated
// cell text, tagging hits with source="table".
func ExtractFromTables(tables []Table) []Entity {
	var out []Entity
	for _, tbl := range tables {
		kind := classifyTable(tbl.Header)
		var cells []string
		cells = append(cells, tbl.Header...)
		for _, row := range tbl.Rows {
			cells = append(cells, row...)
		}
		for _, e := range ExtractBasic(strings.Join(cells, " "), "table") {
			switch kind {
			case "material":
				if e.Kind != KindMaterial {
					continue
				}
			case "component":
				if e.Kind != KindComponent && e.Kind != KindDimension {
					continue
				}
			}
			out = append(out, e)
		}
	}
	return out
}

// ParseDimensionValue extracts the first numeric component of a dimension
// value for numeric comparison; the original string is kept verbatim on the
// entity for rendering. "300x500" parses to 300; a plain "120" to 120.
func ParseDimensionValue(value string) (float64, bool) {
	i := 0
	for i < len(value) && (value[i] >= '0' && value[i] <= '9' || value[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(value[:i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
