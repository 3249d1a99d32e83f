// Package google adapts the Gemini API (genai SDK) to the llm.Provider
// surface.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"ragengine/internal/config"
	"ragengine/internal/llm"
)

// Client calls the Gemini generate-content API.
type Client struct {
	client *genai.Client
	model  string
}

// New builds a Client from cfg. Construction dials nothing; the first call
// does.
func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := time.Duration(cfg.Timeout) * time.Second
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	if c.model != "" {
		return c.model
	}
	return "gemini-2.0-flash"
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, _ []llm.ToolSchema, model string) (llm.Message, error) {
	contents, cfg := adaptMessages(msgs)
	resp, err := c.client.Models.GenerateContent(ctx, c.pickModel(model), contents, cfg)
	if err != nil {
		return llm.Message{}, fmt.Errorf("google chat: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return llm.Message{}, err
	}
	return llm.Message{Role: "assistant", Content: text}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, _ []llm.ToolSchema, model string, h llm.StreamHandler) error {
	contents, cfg := adaptMessages(msgs)
	stream := c.client.Models.GenerateContentStream(ctx, c.pickModel(model), contents, cfg)
	for resp, err := range stream {
		if err != nil {
			return fmt.Errorf("google stream: %w", err)
		}
		text, terr := responseText(resp)
		if terr != nil {
			return terr
		}
		if text != "" {
			h.OnDelta(text)
		}
	}
	return nil
}

// adaptMessages maps chat turns to genai contents, routing system turns to
// the system instruction.
func adaptMessages(msgs []llm.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var cfg genai.GenerateContentConfig
	var system []string
	var contents []*genai.Content
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, &cfg
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("google chat: nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("google chat: request blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("google chat: response blocked by safety filters")
	}
	if candidate.Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
