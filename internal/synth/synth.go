// Package synth turns a question and an ordered candidate list into a
// grounded answer: the model answers only from the supplied context, and
// falls back to a fixed refusal sentence when the context doesn't cover it.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
	"github.com/intelligencedev/ragserver/internal/rag/retrieve"
	"github.com/intelligencedev/ragserver/internal/ragerrors"
)

// NoInformationAnswer is the literal sentence the model must return verbatim
// when the provided context does not contain the answer.
const NoInformationAnswer = "I don't have specific documentation about that."

const systemPrompt = `You are a documentation assistant. Answer ONLY using the
context provided below. Do not use outside knowledge.

Rules:
1. If the context does not contain the answer, respond with exactly this
   sentence and nothing else: "` + NoInformationAnswer + `"
2. Never invent filenames, APIs, configuration keys, or features that are
   not present in the context.
3. When your answer draws on a specific piece of context, cite its source
   filename inline, e.g. (source: config.md).`

// Source is a citation attached to a synthesized answer.
type Source struct {
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}

// Result is the output of a single synthesis call.
type Result struct {
	Answer  string        `json:"answer"`
	Sources []Source      `json:"sources"`
	Timing  time.Duration `json:"timing"`
}

// Synthesizer performs single-turn, grounded completions over a candidate
// list retrieved for one question.
type Synthesizer struct {
	provider llm.Provider
	model    string
	temp     float64
	maxOut   int64
	timeout  time.Duration
}

// New builds a Synthesizer from an LLM provider and the resolved LLM config.
func New(provider llm.Provider, cfg config.LLMConfig) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		model:    cfg.Model,
		temp:     cfg.Temperature,
		maxOut:   cfg.MaxOutputTokens,
		timeout:  cfg.RequestTimeout,
	}
}

// Synthesize answers question from candidates. An empty candidate list
// short-circuits to NoInformationAnswer without an LLM call.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, candidates []retrieve.RetrievedItem) (Result, error) {
	start := time.Now()
	if len(candidates) == 0 {
		return Result{Answer: NoInformationAnswer, Timing: time.Since(start)}, nil
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := llm.Request{
		Model: s.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", buildContext(candidates), question)},
		},
		Temperature:     s.temp,
		MaxOutputTokens: s.maxOut,
	}
	answer, err := s.provider.Chat(cctx, req)
	if err != nil {
		if cctx.Err() != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("synthesize %q: %w", question, ragerrors.ErrLLMTimeout)
		}
		return Result{}, fmt.Errorf("synthesize %q: %w", question, ragerrors.ErrLLMUnavailable)
	}

	return Result{
		Answer:  strings.TrimSpace(answer),
		Sources: sourcesFrom(candidates),
		Timing:  time.Since(start),
	}, nil
}

func buildContext(candidates []retrieve.RetrievedItem) string {
	var b strings.Builder
	for i, c := range candidates {
		filename := c.Metadata["filename"]
		if filename == "" {
			filename = c.DocID
		}
		fmt.Fprintf(&b, "[%d] source=%s score=%.3f\n%s\n\n", i+1, filename, c.Score, snippetOrText(c))
	}
	return b.String()
}

func snippetOrText(c retrieve.RetrievedItem) string {
	if c.Text != "" {
		return c.Text
	}
	return c.Snippet
}

// sourcesFrom dedups candidates by filename, keeping the highest score seen,
// and returns them sorted by descending score.
func sourcesFrom(candidates []retrieve.RetrievedItem) []Source {
	best := map[string]float64{}
	for _, c := range candidates {
		filename := c.Metadata["filename"]
		if filename == "" {
			continue
		}
		if cur, ok := best[filename]; !ok || c.Score > cur {
			best[filename] = c.Score
		}
	}
	out := make([]Source, 0, len(best))
	for fn, score := range best {
		out = append(out, Source{Filename: fn, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
