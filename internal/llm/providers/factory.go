// Package providers selects the concrete chat backend from configuration.
package providers

import (
	"fmt"
	"net/http"

	"ragengine/internal/config"
	"ragengine/internal/llm"
	"ragengine/internal/llm/anthropic"
	"ragengine/internal/llm/google"
	openaillm "ragengine/internal/llm/openai"
)

// Build constructs an llm.Provider based on the configured provider name.
// "local" reuses the OpenAI client against a self-hosted BaseURL.
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLMClient.Provider {
	case "", "openai", "local":
		return openaillm.New(cfg.LLMClient.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.LLMClient.Anthropic, httpClient), nil
	case "google":
		return google.New(cfg.LLMClient.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMClient.Provider)
	}
}
