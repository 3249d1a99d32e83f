// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// surface.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ragengine/internal/config"
	"ragengine/internal/llm"
)

const defaultMaxTokens int64 = 1024

// Client calls the Anthropic Messages API.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	cacheCfg  config.AnthropicPromptCacheConfig
}

// New builds a Client from cfg. The http client carries the caller's
// timeout; the SDK inherits it.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
		cacheCfg:  cfg.PromptCache,
	}
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func (c *Client) params(msgs []llm.Message, model string) anthropic.MessageNewParams {
	system, converted := adaptMessages(msgs, c.cacheCfg)
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(model)),
		Messages:  converted,
		System:    system,
		MaxTokens: c.maxTokens,
	}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, _ []llm.ToolSchema, model string) (llm.Message, error) {
	resp, err := c.sdk.Messages.New(ctx, c.params(msgs, model))
	if err != nil {
		return llm.Message{}, fmt.Errorf("anthropic chat: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return llm.Message{Role: "assistant", Content: sb.String()}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, _ []llm.ToolSchema, model string, h llm.StreamHandler) error {
	stream := c.sdk.Messages.NewStreaming(ctx, c.params(msgs, model))
	for stream.Next() {
		event := stream.Current()
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				h.OnDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}

// adaptMessages splits system turns out into the dedicated system field
// (with an optional prompt-cache breakpoint on the last block) and maps the
// rest to user/assistant message params.
func adaptMessages(msgs []llm.Message, cacheCfg config.AnthropicPromptCacheConfig) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: content})
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	if cacheCfg.Enabled && cacheCfg.CacheSystem && len(system) > 0 {
		system[len(system)-1].CacheControl = anthropic.CacheControlEphemeralParam{TTL: anthropic.CacheControlEphemeralTTLTTL5m}
	}
	return system, out
}
