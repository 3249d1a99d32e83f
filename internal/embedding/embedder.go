package embedding

import (
	"context"
	"fmt"

	"ragengine/internal/config"
)

// Client is the reusable embedding handle the retrieval and ingestion
// paths share: EmbedBatch for chunk ingestion, Embed for a single query.
type Client struct {
	cfg config.EmbeddingConfig
}

func NewClient(cfg config.EmbeddingConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return EmbedText(ctx, c.cfg, texts)
}

// Embed produces a single query vector, applying the configured instruct
// prefix (retrieval-tuned models embed queries differently from passages).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cfg.InstructPrefix != "" {
		text = c.cfg.InstructPrefix + text
	}
	vecs, err := EmbedText(ctx, c.cfg, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}
