package agent

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCorpus struct {
	hits []CorpusHit
	err  error
}

func (f *fakeCorpus) Search(_ context.Context, _ string, _ int) ([]CorpusHit, error) {
	return f.hits, f.err
}

func TestClassify(t *testing.T) {
	w := NewLocalRetrievalWorker(nil)
	ctx := context.Background()

	tests := []struct {
		text       string
		intent     string
		domain     string
		complexity string
	}{
		{"What is the capital of France?", "factual_lookup", "geography", "simple"},
		{"How do I configure a database index?", "procedural", "technology", "simple"},
		{"Why does inflation rise when interest rates fall, and what does that mean?", "explanatory", "finance", "moderate"},
		{"Python vs Go for network services", "comparative", "technology", "complex"},
	}

	for _, tt := range tests {
		cls, err := w.Classify(ctx, ClassifyRequest{Text: tt.text})
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.intent, cls.Intent, tt.text)
		assert.Equal(t, tt.domain, cls.Domain, tt.text)
		assert.Equal(t, tt.complexity, cls.Complexity, tt.text)
		assert.GreaterOrEqual(t, cls.Confidence, 0.0)
		assert.LessOrEqual(t, cls.Confidence, 1.0)
	}
}

func TestClassify_Cancelled(t *testing.T) {
	w := NewLocalRetrievalWorker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Classify(ctx, ClassifyRequest{Text: "anything"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetrieve_Corpus(t *testing.T) {
	corpus := &fakeCorpus{hits: []CorpusHit{
		{ID: "d1", Title: "Paris", Content: "Paris is the capital of France.", Score: 0.92},
		{ID: "d2", Title: "France", Content: "France is a country in Europe.", Score: 0.61},
	}}
	w := NewLocalRetrievalWorker(corpus)

	out, err := w.Retrieve(context.Background(), RetrieveRequest{Text: "capital of France", Limit: 5})
	require.NoError(t, err)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "d1", out.Sources[0].ID)
	assert.InDelta(t, 0.92, out.Sources[0].Relevance, 0.001)
	assert.Equal(t, "agent", out.Origin)
}

func TestRetrieve_CorpusError(t *testing.T) {
	w := NewLocalRetrievalWorker(&fakeCorpus{err: errors.New("store down")})
	_, err := w.Retrieve(context.Background(), RetrieveRequest{Text: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus search")
}

func TestRetrieve_StubDeterministic(t *testing.T) {
	w := NewLocalRetrievalWorker(nil)
	ctx := context.Background()

	a, err := w.Retrieve(ctx, RetrieveRequest{Text: "capital of France", Source: "web"})
	require.NoError(t, err)
	b, err := w.Retrieve(ctx, RetrieveRequest{Text: "capital of France", Source: "web"})
	require.NoError(t, err)

	require.NotEmpty(t, a.Sources)
	assert.Equal(t, a.Sources, b.Sources)
	for _, s := range a.Sources {
		assert.Equal(t, "web", s.Origin)
		assert.GreaterOrEqual(t, s.Relevance, 0.0)
		assert.LessOrEqual(t, s.Relevance, 1.0)
	}
}

func TestVerify(t *testing.T) {
	w := NewLocalFactCheckWorker()
	ctx := context.Background()

	out, err := w.Verify(ctx, VerifyRequest{
		Text: "capital of France",
		Sources: []Source{
			{ID: "s1", Title: "Paris", Snippet: "Paris is the capital of France", Relevance: 0.9},
			{ID: "s2", Title: "Noise", Snippet: "unrelated text", Relevance: 0.1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.CheckedSources)
	assert.GreaterOrEqual(t, out.Score, 0.0)
	assert.LessOrEqual(t, out.Score, 1.0)
	require.Len(t, out.Contradictions, 1)
	assert.Contains(t, out.Contradictions[0], "s2")
}

func TestVerify_NoSources(t *testing.T) {
	w := NewLocalFactCheckWorker()
	out, err := w.Verify(context.Background(), VerifyRequest{Text: "x"})
	require.NoError(t, err)
	assert.Zero(t, out.Score)
	assert.NotEmpty(t, out.Contradictions)
}

func TestSynthesize(t *testing.T) {
	w := NewLocalSynthesisWorker()
	out, err := w.Synthesize(context.Background(), SynthesizeRequest{
		Text: "capital of France",
		Sources: []Source{
			{ID: "s1", Title: "Paris", Snippet: "Paris is the capital of France.", Relevance: 0.95},
			{ID: "s2", Title: "Europe", Snippet: "France is in Europe.", Relevance: 0.5},
		},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Answer, "Paris")
	assert.Equal(t, "extractive", out.Method)
	assert.NotEmpty(t, out.KeyPoints)
	assert.Equal(t, 1, out.SourceUsage["s1"])
	assert.LessOrEqual(t, len(out.Answer), 400)
}

func TestSynthesize_NoSources(t *testing.T) {
	w := NewLocalSynthesisWorker()
	_, err := w.Synthesize(context.Background(), SynthesizeRequest{Text: "x"})
	require.Error(t, err)
}

func TestAssess_Bounds(t *testing.T) {
	w := NewLocalFactCheckWorker()
	out, err := w.Assess(context.Background(), AssessRequest{
		Text:   "capital of France",
		Answer: "Paris is the capital of France.",
		Sources: []Source{
			{ID: "s1", Relevance: 0.9},
		},
		Verification: &Verification{Score: 0.8},
	})
	require.NoError(t, err)
	for name, v := range map[string]float64{
		"confidence":   out.Confidence,
		"completeness": out.Completeness,
		"accuracy":     out.Accuracy,
		"relevance":    out.Relevance,
		"overall":      out.Overall,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestAlternatives(t *testing.T) {
	w := NewLocalSynthesisWorker()
	alts, err := w.Alternatives(context.Background(), AlternativesRequest{
		Text:   "capital of France",
		Answer: "Paris is the capital of France.",
		Sources: []Source{
			{ID: "s1", Snippet: "Paris is the capital of France.", Relevance: 0.95},
			{ID: "s2", Snippet: "The French capital is Paris, on the Seine.", Relevance: 0.7},
			{ID: "s3", Snippet: "France's seat of government is Paris.", Relevance: 0.6},
		},
		Max: 2,
	})
	require.NoError(t, err)
	require.Len(t, alts, 2)
	// The primary answer's source is skipped.
	assert.NotEqual(t, "Paris is the capital of France.", alts[0].Answer)
}

func TestAlternatives_ZeroMax(t *testing.T) {
	w := NewLocalSynthesisWorker()
	alts, err := w.Alternatives(context.Background(), AlternativesRequest{Max: 0})
	require.NoError(t, err)
	assert.Empty(t, alts)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"ascii untouched", "hello", 10, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"cjk cut lands mid rune", "東京は日本の首都", 7, "東京"},
		{"cjk cut on boundary", "東京は日本の首都", 6, "東京"},
		{"accented", "café latte", 4, "caf"},
		{"empty", "", 4, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.n)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
