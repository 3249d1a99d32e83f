package drawing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragengine/internal/llm"
)

// enrichInstruction is the fixed instruction sent with a drawing text
// sample. The model must answer with a JSON array of entities in the same
// schema the rule pass produces.
const enrichInstruction = `Extract construction entities from the drawing text below.
Answer with a JSON array only, no prose. Each element:
{"kind":"component|material|specification|dimension","code":"...","component_type":"...","grade":"...","material_type":"...","dim_type":"...","value":"...","unit":"..."}`

// enrichedEntity is the JSON contract for one LLM-extracted entity.
type enrichedEntity struct {
	Kind          string `json:"kind"`
	Code          string `json:"code,omitempty"`
	ComponentType string `json:"component_type,omitempty"`
	Grade         string `json:"grade,omitempty"`
	MaterialType  string `json:"material_type,omitempty"`
	DimType       string `json:"dim_type,omitempty"`
	Value         string `json:"value,omitempty"`
	Unit          string `json:"unit,omitempty"`
}

// LLMEnricher implements the optional enrichment step over an LLM provider.
// It is never wired by default; construction is the opt-in.
type LLMEnricher struct {
	provider llm.Provider
	model    string
}

func NewLLMEnricher(provider llm.Provider, model string) *LLMEnricher {
	return &LLMEnricher{provider: provider, model: model}
}

func (e *LLMEnricher) EnrichEntities(ctx context.Context, textSample string) ([]Entity, error) {
	msg, err := e.provider.Chat(ctx, []llm.Message{
		{Role: "user", Content: enrichInstruction + "\n\n" + textSample},
	}, nil, e.model)
	if err != nil {
		return nil, err
	}
	return ParseEnrichedEntities(msg.Content)
}

// ParseEnrichedEntities decodes the model's JSON answer into the rule-pass
// entity shape, tagging source="llm". Elements with an unknown kind or a
// missing identifying field are skipped rather than failing the batch.
func ParseEnrichedEntities(answer string) ([]Entity, error) {
	raw := strings.TrimSpace(answer)
	if i := strings.Index(raw, "["); i >= 0 {
		if j := strings.LastIndex(raw, "]"); j > i {
			raw = raw[i : j+1]
		}
	}
	var decoded []enrichedEntity
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse enrichment answer: %w", err)
	}
	var out []Entity
	for _, d := range decoded {
		switch EntityKind(d.Kind) {
		case KindComponent:
			if d.Code == "" {
				continue
			}
			out = append(out, Entity{Kind: KindComponent, Key: d.Code, Code: d.Code,
				ComponentType: ComponentType(d.ComponentType), Source: "llm"})
		case KindMaterial:
			if d.Grade == "" {
				continue
			}
			kind := d.MaterialType
			if kind == "" {
				kind = materialKind(d.Grade)
			}
			out = append(out, Entity{Kind: KindMaterial, Key: d.Grade, Grade: d.Grade,
				MaterialKind: kind, Source: "llm"})
		case KindSpecification:
			if d.Code == "" {
				continue
			}
			out = append(out, Entity{Kind: KindSpecification, Key: d.Code, Code: d.Code, Source: "llm"})
		case KindDimension:
			if d.Value == "" {
				continue
			}
			dimType := d.DimType
			if dimType == "" {
				dimType = "section"
			}
			out = append(out, Entity{Kind: KindDimension, Key: dimType + ":" + d.Value,
				DimType: dimType, Value: d.Value, Unit: d.Unit, Source: "llm"})
		}
	}
	return out, nil
}
