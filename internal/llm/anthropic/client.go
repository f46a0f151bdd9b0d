// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// interface for single-turn grounded completions.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
)

type Client struct {
	sdk   anthropicsdk.Client
	model string
}

func New(cfg config.LLMConfig, httpClient *http.Client) *Client {
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
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (string, error) {
	var sys string
	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			sys = m.Content
		case "assistant":
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if sys != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: sys}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
