// Package google adapts the Gemini API to the llm.Provider interface for
// single-turn grounded completions.
package google

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
)

type Client struct {
	sdk   *genai.Client
	model string
}

func New(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	ccfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	client, err := genai.NewClient(ctx, ccfg)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{sdk: client, model: model}, nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (string, error) {
	var sys string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			sys = m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	cfg := &genai.GenerateContentConfig{}
	if sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
