package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
	"github.com/intelligencedev/ragserver/internal/rag/retrieve"
	"github.com/intelligencedev/ragserver/internal/synth"
)

type stubProvider struct {
	decomposeReply string
	fuseReply      string
	calls          int
}

func (s *stubProvider) Chat(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	if s.calls == 1 {
		return s.decomposeReply, nil
	}
	return s.fuseReply, nil
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(_ context.Context, q string, _ retrieve.RetrieveOptions) (retrieve.RetrieveResponse, error) {
	return retrieve.RetrieveResponse{
		Query: q,
		Items: []retrieve.RetrievedItem{
			{ID: "chunk:1", Text: "relevant content for: " + q, Score: 0.8, Metadata: map[string]string{"filename": "doc.md"}},
		},
	}, nil
}

func TestPlan_DecomposesRetrievesAndFuses(t *testing.T) {
	provider := &stubProvider{
		decomposeReply: "1. What is A?\n2. What is B?",
		fuseReply:      "A and B together mean C (source: doc.md).",
	}
	s := synth.New(provider, config.LLMConfig{Model: "test-model"})
	p := New(provider, "test-model", stubRetriever{}, s)

	res, err := p.Plan(context.Background(), "what do A and B mean?", retrieve.RetrieveOptions{K: 5})
	require.NoError(t, err)
	require.Equal(t, "A and B together mean C (source: doc.md).", res.Answer)
	require.Len(t, res.SubQuestions, 2)
	require.Equal(t, "What is A?", res.SubQuestions[0].Question)
	require.NotEmpty(t, res.Sources)
}

func TestPlan_FallsBackToOriginalQuestionOnParseFailure(t *testing.T) {
	provider := &stubProvider{
		decomposeReply: "I cannot help with sub-questions right now.",
		fuseReply:      "Fused answer.",
	}
	s := synth.New(provider, config.LLMConfig{Model: "test-model"})
	p := New(provider, "test-model", stubRetriever{}, s)

	res, err := p.Plan(context.Background(), "original question", retrieve.RetrieveOptions{K: 5})
	require.NoError(t, err)
	require.Len(t, res.SubQuestions, 1)
	require.Equal(t, "original question", res.SubQuestions[0].Question)
}
