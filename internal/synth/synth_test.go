package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/llm"
	"github.com/intelligencedev/ragserver/internal/rag/retrieve"
)

type fakeProvider struct {
	answer string
	err    error
	lastReq llm.Request
}

func (f *fakeProvider) Chat(_ context.Context, req llm.Request) (string, error) {
	f.lastReq = req
	return f.answer, f.err
}

func TestSynthesize_EmptyCandidatesShortCircuits(t *testing.T) {
	fp := &fakeProvider{answer: "should not be used"}
	s := New(fp, config.LLMConfig{})
	res, err := s.Synthesize(context.Background(), "what is x?", nil)
	require.NoError(t, err)
	require.Equal(t, NoInformationAnswer, res.Answer)
	require.Empty(t, fp.lastReq.Model)
}

func TestSynthesize_GroundedAnswerCarriesSources(t *testing.T) {
	fp := &fakeProvider{answer: "X is configured via config.md (source: config.md)."}
	s := New(fp, config.LLMConfig{Model: "test-model", Temperature: 0.2, MaxOutputTokens: 800})
	candidates := []retrieve.RetrievedItem{
		{ID: "chunk:doc:1:0", Text: "X is set in the [x] section.", Score: 0.9, Metadata: map[string]string{"filename": "config.md"}},
	}
	res, err := s.Synthesize(context.Background(), "how is X configured?", candidates)
	require.NoError(t, err)
	require.Equal(t, "X is configured via config.md (source: config.md).", res.Answer)
	require.Len(t, res.Sources, 1)
	require.Equal(t, "config.md", res.Sources[0].Filename)
	require.Equal(t, "test-model", fp.lastReq.Model)
}
