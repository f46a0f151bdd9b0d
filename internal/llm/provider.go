// Package llm defines the pluggable provider interface used by the
// Synthesizer and Agentic Planner for single-turn, grounded completions.
package llm

import "context"

// Message is one turn of a chat-style completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Request configures a single completion call.
type Request struct {
	Model           string
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int64
}

// Provider is implemented by each backing LLM (Anthropic, OpenAI, Google).
// Synthesis and sub-question planning are both single-turn, non-streaming,
// tool-free calls, so the surface here stays intentionally narrow.
type Provider interface {
	Chat(ctx context.Context, req Request) (string, error)
}
