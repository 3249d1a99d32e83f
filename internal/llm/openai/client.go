// Package openai adapts OpenAI-compatible Chat Completions servers
// (including self-hosted llama.cpp/mlx_lm endpoints via BaseURL) to the
// llm.Provider surface.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragengine/internal/config"
	"ragengine/internal/llm"
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client from cfg, pointing at api.openai.com unless a custom
// BaseURL is configured.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: strings.TrimSpace(cfg.Model)}
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func (c *Client) params(msgs []llm.Message, model string) sdk.ChatCompletionNewParams {
	return sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.pickModel(model)),
		Messages: adaptMessages(msgs),
	}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, _ []llm.ToolSchema, model string) (llm.Message, error) {
	comp, err := c.sdk.Chat.Completions.New(ctx, c.params(msgs, model))
	if err != nil {
		return llm.Message{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(comp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("openai chat: empty choices")
	}
	return llm.Message{Role: "assistant", Content: comp.Choices[0].Message.Content}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, _ []llm.ToolSchema, model string, h llm.StreamHandler) error {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, c.params(msgs, model))
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			h.OnDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, sdk.SystemMessage(content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(content))
		default:
			out = append(out, sdk.UserMessage(content))
		}
	}
	return out
}
