// Package planner implements the agentic retrieval mode: decompose a
// question into sub-questions, answer each independently, then fuse the
// sub-answers into one grounded final answer.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/intelligencedev/ragserver/internal/llm"
	"github.com/intelligencedev/ragserver/internal/rag/retrieve"
	"github.com/intelligencedev/ragserver/internal/synth"
)

const decomposePrompt = `Break the following question into 2 to 5 independent
sub-questions that together cover everything needed to answer it fully.
Reply with ONLY a numbered list, one sub-question per line, like:
1. ...
2. ...
Do not answer the question itself.

Question: %s`

var numberedLineRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// Retriever is the subset of rag/service.Service the planner needs to
// re-query per sub-question.
type Retriever interface {
	Retrieve(ctx context.Context, q string, opt retrieve.RetrieveOptions) (retrieve.RetrieveResponse, error)
}

// SubAnswer is one sub-question's grounded answer.
type SubAnswer struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Sources  []synth.Source `json:"sources"`
}

// Result is the fused output of an agentic run.
type Result struct {
	Answer       string         `json:"answer"`
	Sources      []synth.Source `json:"sources"`
	SubQuestions []SubAnswer    `json:"sub_questions"`
}

// Planner decomposes, re-retrieves, and fuses sub-answers, reusing the same
// Synthesizer (and therefore the same grounding contract) at every step.
type Planner struct {
	provider  llm.Provider
	model     string
	retriever Retriever
	synth     *synth.Synthesizer
}

// New builds a Planner bound to one KB's Retriever and Synthesizer.
func New(provider llm.Provider, model string, retriever Retriever, synthesizer *synth.Synthesizer) *Planner {
	return &Planner{provider: provider, model: model, retriever: retriever, synth: synthesizer}
}

// Plan runs the full agentic flow for question under opt.
func (p *Planner) Plan(ctx context.Context, question string, opt retrieve.RetrieveOptions) (Result, error) {
	subQuestions := p.decompose(ctx, question)

	subAnswers := make([]SubAnswer, 0, len(subQuestions))
	seenSources := map[string]synth.Source{}
	for _, sq := range subQuestions {
		resp, err := p.retriever.Retrieve(ctx, sq, opt)
		if err != nil {
			return Result{}, fmt.Errorf("agentic retrieve %q: %w", sq, err)
		}
		res, err := p.synth.Synthesize(ctx, sq, resp.Items)
		if err != nil {
			return Result{}, fmt.Errorf("agentic synthesize %q: %w", sq, err)
		}
		subAnswers = append(subAnswers, SubAnswer{Question: sq, Answer: res.Answer, Sources: res.Sources})
		for _, src := range res.Sources {
			if cur, ok := seenSources[src.Filename]; !ok || src.Score > cur.Score {
				seenSources[src.Filename] = src
			}
		}
	}

	final, err := p.fuse(ctx, question, subAnswers)
	if err != nil {
		return Result{}, err
	}

	sources := make([]synth.Source, 0, len(seenSources))
	for _, s := range seenSources {
		sources = append(sources, s)
	}
	return Result{Answer: final, Sources: sources, SubQuestions: subAnswers}, nil
}

// decompose asks the LLM for sub-questions and parses the numbered-list
// response. Parse failures, or an LLM error, fall back to treating the
// original question as the sole sub-question.
func (p *Planner) decompose(ctx context.Context, question string) []string {
	out, err := p.provider.Chat(ctx, llm.Request{
		Model:           p.model,
		Messages:        []llm.Message{{Role: "user", Content: fmt.Sprintf(decomposePrompt, question)}},
		Temperature:     0.2,
		MaxOutputTokens: 300,
	})
	if err != nil {
		return []string{question}
	}
	subs := parseNumberedList(out)
	if len(subs) == 0 {
		return []string{question}
	}
	if len(subs) > 5 {
		subs = subs[:5]
	}
	return subs
}

func parseNumberedList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if q := strings.TrimSpace(m[1]); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// fuse asks the Synthesizer for one final grounded answer over the
// sub-answers, treating each as a synthetic retrieved item so the same
// grounding contract (cite by filename, refuse if ungrounded) applies.
func (p *Planner) fuse(ctx context.Context, question string, subAnswers []SubAnswer) (string, error) {
	items := make([]retrieve.RetrievedItem, 0, len(subAnswers))
	for i, sa := range subAnswers {
		filename := fmt.Sprintf("sub_question_%d", i+1)
		if len(sa.Sources) > 0 {
			filename = sa.Sources[0].Filename
		}
		items = append(items, retrieve.RetrievedItem{
			ID:       fmt.Sprintf("subanswer:%d", i),
			Text:     fmt.Sprintf("Q: %s\nA: %s", sa.Question, sa.Answer),
			Score:    1,
			Metadata: map[string]string{"filename": filename},
		})
	}
	res, err := p.synth.Synthesize(ctx, question, items)
	if err != nil {
		return "", fmt.Errorf("agentic fuse: %w", err)
	}
	return res.Answer, nil
}
