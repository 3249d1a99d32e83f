// Package llm defines the provider-neutral chat surface the pipeline and
// the drawing enricher call: plain role/content messages in, one assistant
// message (or a stream of deltas) out. Concrete backends live in the
// subpackages and are selected by providers.Build.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ToolSchema describes a callable tool offered to the model. The engine's
// own callers pass none today; the parameter stays on the interface so a
// backend can be swapped in for agentic callers without changing shape.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamHandler receives incremental output during ChatStream.
type StreamHandler interface {
	OnDelta(content string)
}

// Provider is the outbound LLM client surface. Both calls honor the
// context deadline; retries are the caller's concern.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error
}
