package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
	"github.com/intelligencedev/ragserver/internal/llm/anthropic"
	"github.com/intelligencedev/ragserver/internal/llm/google"
	openaillm "github.com/intelligencedev/ragserver/internal/llm/openai"
)

// Build constructs an llm.Provider based on cfg.Provider.
func Build(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(cfg, httpClient), nil
	case "openai":
		return openaillm.New(cfg, httpClient), nil
	case "google":
		return google.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
