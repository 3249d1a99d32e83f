package drawing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBasicBeamLine(t *testing.T) {
	entities := ExtractBasic("KL-1 C30 HRB400 300x500 GB50010-2010", "rule")

	byKind := map[EntityKind][]Entity{}
	for _, e := range entities {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}
	require.Len(t, byKind[KindComponent], 1)
	assert.Equal(t, "KL-1", byKind[KindComponent][0].Code)
	assert.Equal(t, ComponentBeam, byKind[KindComponent][0].ComponentType)

	grades := []string{}
	for _, m := range byKind[KindMaterial] {
		grades = append(grades, m.Grade)
	}
	assert.ElementsMatch(t, []string{"C30", "HRB400"}, grades)

	require.Len(t, byKind[KindSpecification], 1)
	assert.Equal(t, "GB50010-2010", byKind[KindSpecification][0].Code)

	require.Len(t, byKind[KindDimension], 1)
	assert.Equal(t, "section", byKind[KindDimension][0].DimType)
	assert.Equal(t, "300x500", byKind[KindDimension][0].Value)
}

func TestExtractBasicNamedDimensionsAndColumns(t *testing.T) {
	entities := ExtractBasic("KZ-3柱 厚度: 200mm 板LB-2", "rule")
	var dims, comps []Entity
	for _, e := range entities {
		switch e.Kind {
		case KindDimension:
			dims = append(dims, e)
		case KindComponent:
			comps = append(comps, e)
		}
	}
	require.Len(t, dims, 1)
	assert.Equal(t, "thickness", dims[0].DimType)
	assert.Equal(t, "200", dims[0].Value)
	assert.Equal(t, "mm", dims[0].Unit)

	types := map[string]ComponentType{}
	for _, c := range comps {
		types[c.Code] = c.ComponentType
	}
	assert.Equal(t, ComponentColumn, types["KZ-3"])
	assert.Equal(t, ComponentSlab, types["LB-2"])
}

func TestDedupCollisionKeys(t *testing.T) {
	in := []Entity{
		{Kind: KindMaterial, Key: "C30", Grade: "C30", Source: "rule"},
		{Kind: KindMaterial, Key: "C30", Grade: "C30", Source: "table"},
		{Kind: KindComponent, Key: "KL-1", Code: "KL-1", Source: "rule"},
		{Kind: KindDimension, Key: "section:300x500", Value: "300x500", Source: "rule"},
		{Kind: KindDimension, Key: "section:300x500", Value: "300x500", Source: "table"},
	}
	out := Dedup(in)
	require.Len(t, out, 3)
	for _, e := range out {
		// Rule output wins ties with table output.
		assert.Equal(t, "rule", e.Source)
	}
}

func TestInferRelationsBeamScenario(t *testing.T) {
	entities := Dedup(ExtractBasic("KL-1 C30 HRB400 300x500 GB50010-2010", "rule"))
	rels := InferRelations("doc:d1", entities)

	type edge struct{ typ, from, to string }
	var edges []edge
	for _, r := range rels {
		edges = append(edges, edge{r.Type, r.FromKey, r.ToKey})
	}
	assert.Contains(t, edges, edge{"USES_MATERIAL", "KL-1", "C30"})
	assert.Contains(t, edges, edge{"USES_MATERIAL", "KL-1", "HRB400"})
	assert.Contains(t, edges, edge{"HAS_DIMENSION", "KL-1", "section:300x500"})
	assert.Contains(t, edges, edge{"REFERS_TO", "doc:d1", "GB50010-2010"})
	for _, e := range entities {
		assert.Contains(t, edges, edge{"BELONGS_TO", e.Key, "doc:d1"})
	}
}

func TestInferRelationsConnectedTo(t *testing.T) {
	entities := Dedup(ExtractBasic("KL-1 KZ-2 LB-3", "rule"))
	rels := InferRelations("doc:d1", entities)
	var connected [][2]string
	for _, r := range rels {
		if r.Type == "CONNECTED_TO" {
			connected = append(connected, [2]string{r.FromKey, r.ToKey})
		}
	}
	assert.Contains(t, connected, [2]string{"KL-1", "KZ-2"})
	assert.Contains(t, connected, [2]string{"LB-3", "KL-1"})
}

func TestExtractFromTablesClassification(t *testing.T) {
	tables := []Table{
		{Header: []string{"材料表", "等级"}, Rows: [][]string{{"混凝土", "C35"}, {"钢筋", "HRB400"}}},
		{Header: []string{"构件表"}, Rows: [][]string{{"KL-7", "300x600"}}},
		{Header: []string{"misc"}, Rows: [][]string{{"GB50011-2010"}}},
	}
	out := ExtractFromTables(tables)

	for _, e := range out {
		assert.Equal(t, "table", e.Source)
	}
	var grades, codes, specs []string
	for _, e := range out {
		switch e.Kind {
		case KindMaterial:
			grades = append(grades, e.Grade)
		case KindComponent:
			codes = append(codes, e.Code)
		case KindSpecification:
			specs = append(specs, e.Code)
		}
	}
	assert.ElementsMatch(t, []string{"C35", "HRB400"}, grades)
	assert.Contains(t, codes, "KL-7")
	assert.Contains(t, specs, "GB50011-2010")
}

func TestParseDimensionValue(t *testing.T) {
	v, ok := ParseDimensionValue("300x500")
	require.True(t, ok)
	assert.Equal(t, 300.0, v)

	v, ok = ParseDimensionValue("120.5")
	require.True(t, ok)
	assert.Equal(t, 120.5, v)

	_, ok = ParseDimensionValue("n/a")
	assert.False(t, ok)
}

func TestParseEnrichedEntities(t *testing.T) {
	answer := "Here you go:\n[" +
		`{"kind":"component","code":"KL-9","component_type":"beam"},` +
		`{"kind":"material","grade":"C40"},` +
		`{"kind":"dimension","value":"250x400"},` +
		`{"kind":"unknown","code":"x"},` +
		`{"kind":"component"}` +
		"]"
	out, err := ParseEnrichedEntities(answer)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "llm", out[0].Source)
	assert.Equal(t, "concrete", out[1].MaterialKind)
	assert.Equal(t, "section", out[2].DimType)

	_, err = ParseEnrichedEntities("no json at all")
	assert.Error(t, err)
}
