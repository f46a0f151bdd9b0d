// Package openai adapts the OpenAI Chat Completions API to the llm.Provider
// interface for single-turn grounded completions.
package openai

import (
	"context"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
)

type Client struct {
	sdk   openaisdk.Client
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
		model = openaisdk.ChatModelGPT4o
	}
	return &Client{sdk: openaisdk.NewClient(opts...), model: model}
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (string, error) {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openaisdk.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	params := openaisdk.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openaisdk.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(req.MaxOutputTokens)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
