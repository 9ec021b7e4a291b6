package agent

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// CorpusSearcher looks up documents for the local retrieval worker.
// Implemented by the knowledge store; nil searchers fall back to a
// deterministic stub corpus.
type CorpusSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]CorpusHit, error)
}

// CorpusHit is one document match from a corpus search.
type CorpusHit struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// ---- retrieval worker ----

// LocalRetrievalWorker classifies queries and retrieves sources from a
// local corpus.
type LocalRetrievalWorker struct {
	corpus CorpusSearcher
}

// NewLocalRetrievalWorker creates a retrieval worker over the given
// corpus; corpus may be nil.
func NewLocalRetrievalWorker(corpus CorpusSearcher) *LocalRetrievalWorker {
	return &LocalRetrievalWorker{corpus: corpus}
}

func (w *LocalRetrievalWorker) AgentType() Type { return TypeRetrieval }

// Classify tags the query using lexical heuristics.
func (w *LocalRetrievalWorker) Classify(ctx context.Context, req ClassifyRequest) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ToLower(strings.TrimSpace(req.Text))
	words := strings.Fields(text)

	intent := "factual_lookup"
	switch {
	case strings.HasPrefix(text, "how "):
		intent = "procedural"
	case strings.HasPrefix(text, "why "):
		intent = "explanatory"
	case strings.Contains(text, " vs ") || strings.Contains(text, "compare"):
		intent = "comparative"
	case strings.HasPrefix(text, "should ") || strings.Contains(text, "opinion"):
		intent = "opinion"
	}

	domain := "general"
	for d, hints := range domainHints {
		for _, h := range hints {
			if strings.Contains(text, h) {
				domain = d
				break
			}
		}
	}

	complexity := "simple"
	if len(words) > 12 || strings.Count(text, ",") > 1 {
		complexity = "moderate"
	}
	if len(words) > 30 || intent == "comparative" {
		complexity = "complex"
	}

	return &Classification{
		Intent:            intent,
		Domain:            domain,
		Complexity:        complexity,
		RequiresFactCheck: intent == "factual_lookup" || intent == "comparative",
		RequiresSynthesis: complexity != "simple" || intent != "factual_lookup",
		Confidence:        0.7 + 0.05*float64(min(len(words), 4)),
	}, nil
}

var domainHints = map[string][]string{
	"science":    {"physics", "chemistry", "biology", "quantum", "cell", "energy"},
	"technology": {"software", "computer", "network", "algorithm", "database", "api"},
	"geography":  {"capital", "country", "city", "river", "mountain", "continent"},
	"history":    {"war", "century", "ancient", "empire", "revolution"},
	"finance":    {"stock", "market", "interest", "currency", "inflation"},
}

// Retrieve fetches candidate sources from the corpus, or synthesizes a
// deterministic stub set when no corpus is configured.
func (w *LocalRetrievalWorker) Retrieve(ctx context.Context, req RetrieveRequest) (*Retrieval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	origin := req.Source
	if origin == "" {
		origin = "database"
	}

	if w.corpus != nil {
		hits, err := w.corpus.Search(ctx, req.Text, limit)
		if err != nil {
			return nil, fmt.Errorf("corpus search: %w", err)
		}
		sources := make([]Source, 0, len(hits))
		for _, h := range hits {
			sources = append(sources, Source{
				ID:        h.ID,
				Title:     h.Title,
				Snippet:   truncate(h.Content, 280),
				Relevance: clamp01(h.Score),
				Origin:    origin,
			})
		}
		if len(sources) > 0 {
			return &Retrieval{Sources: sources, Origin: "agent"}, nil
		}
	}

	// Stub corpus: deterministic pseudo-sources derived from the query.
	n := min(limit, 3)
	sources := make([]Source, 0, n)
	for i := 0; i < n; i++ {
		seed := hashFraction(req.Text, byte(i))
		sources = append(sources, Source{
			ID:        fmt.Sprintf("stub-%s-%d", origin, i+1),
			Title:     fmt.Sprintf("Reference %d for %q", i+1, truncate(req.Text, 40)),
			Snippet:   fmt.Sprintf("Summary of findings on %s (source %d).", truncate(req.Text, 80), i+1),
			Relevance: clamp01(0.55 + 0.4*seed),
			Origin:    origin,
		})
	}
	return &Retrieval{Sources: sources, Origin: "agent"}, nil
}

// ---- fact-check worker ----

// LocalFactCheckWorker verifies sources and assesses answer quality.
type LocalFactCheckWorker struct{}

func NewLocalFactCheckWorker() *LocalFactCheckWorker { return &LocalFactCheckWorker{} }

func (w *LocalFactCheckWorker) AgentType() Type { return TypeFactCheck }

// Verify scores term overlap between query and sources. Sources with
// relevance under 0.3 are reported as contradictions.
func (w *LocalFactCheckWorker) Verify(ctx context.Context, req VerifyRequest) (*Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Sources) == 0 {
		return &Verification{Score: 0, Contradictions: []string{"no sources to verify against"}}, nil
	}

	terms := termSet(req.Text)
	var total float64
	var contradictions []string
	for _, s := range req.Sources {
		overlap := overlapRatio(terms, termSet(s.Snippet+" "+s.Title))
		score := 0.5*s.Relevance + 0.5*overlap
		total += score
		if s.Relevance < 0.3 {
			contradictions = append(contradictions,
				fmt.Sprintf("source %s has low relevance (%.2f)", s.ID, s.Relevance))
		}
	}

	return &Verification{
		Score:          clamp01(total / float64(len(req.Sources))),
		Contradictions: contradictions,
		CheckedSources: len(req.Sources),
	}, nil
}

// Assess derives quality scores from verification and source relevance.
func (w *LocalFactCheckWorker) Assess(ctx context.Context, req AssessRequest) (*Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accuracy := 0.5
	if req.Verification != nil {
		accuracy = req.Verification.Score
	}

	relevance := 0.0
	for _, s := range req.Sources {
		relevance += s.Relevance
	}
	if len(req.Sources) > 0 {
		relevance /= float64(len(req.Sources))
	}

	completeness := clamp01(float64(len(req.Answer)) / 400)
	if len(req.Sources) >= 3 {
		completeness = clamp01(completeness + 0.2)
	}

	confidence := clamp01(0.4*accuracy + 0.4*relevance + 0.2*completeness)
	overall := clamp01((accuracy + relevance + completeness + confidence) / 4)

	return &Assessment{
		Confidence:   confidence,
		Completeness: completeness,
		Accuracy:     accuracy,
		Relevance:    relevance,
		Overall:      overall,
	}, nil
}

// ---- synthesis worker ----

// LocalSynthesisWorker composes answers and alternatives from sources.
type LocalSynthesisWorker struct{}

func NewLocalSynthesisWorker() *LocalSynthesisWorker { return &LocalSynthesisWorker{} }

func (w *LocalSynthesisWorker) AgentType() Type { return TypeSynthesis }

// Synthesize builds an extractive answer from the highest-relevance
// sources, bounded by MaxTokens (approximated at four chars per token).
func (w *LocalSynthesisWorker) Synthesize(ctx context.Context, req SynthesizeRequest) (*Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("synthesis requires at least one source")
	}

	sources := make([]Source, len(req.Sources))
	copy(sources, req.Sources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Relevance > sources[j].Relevance
	})

	maxChars := 800
	if req.MaxTokens > 0 {
		maxChars = req.MaxTokens * 4
	}

	var b strings.Builder
	usage := make(map[string]int, len(sources))
	var keyPoints []string
	var used int
	for _, s := range sources {
		if b.Len() >= maxChars || used >= 3 {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Snippet)
		usage[s.ID]++
		keyPoints = append(keyPoints, truncate(s.Title, 80))
		used++
	}

	var relSum float64
	for _, s := range sources[:used] {
		relSum += s.Relevance
	}

	return &Synthesis{
		Answer:      truncate(b.String(), maxChars),
		Method:      "extractive",
		KeyPoints:   keyPoints,
		SourceUsage: usage,
		Confidence:  clamp01(relSum / float64(used)),
	}, nil
}

// Alternatives produces up to Max alternative answers, each built from a
// different source than the primary answer.
func (w *LocalSynthesisWorker) Alternatives(ctx context.Context, req AlternativesRequest) ([]Alternative, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Max <= 0 {
		return nil, nil
	}

	alts := make([]Alternative, 0, req.Max)
	for _, s := range req.Sources {
		if len(alts) >= req.Max {
			break
		}
		if strings.Contains(req.Answer, s.Snippet) {
			continue
		}
		alts = append(alts, Alternative{
			Answer:     s.Snippet,
			Method:     "single_source",
			Confidence: clamp01(s.Relevance * 0.9),
		})
	}
	return alts, nil
}

// ---- helpers ----

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	var hits int
	for w := range a {
		if _, ok := b[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

// hashFraction maps (text, salt) to a stable value in [0,1).
func hashFraction(text string, salt byte) float64 {
	sum := sha256.Sum256(append([]byte(text), salt))
	v := binary.BigEndian.Uint32(sum[:4])
	return float64(v) / float64(^uint32(0))
}
