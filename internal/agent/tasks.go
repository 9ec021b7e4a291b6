package agent

// Typed stage requests and results. Each pipeline stage issues exactly one
// of these request variants through the matching capability interface.

// ClassifyRequest asks for intent/domain/complexity tags for a query.
type ClassifyRequest struct {
	QueryID string
	Text    string
}

// Classification is the classify stage output.
type Classification struct {
	Intent            string  `json:"intent"`
	Domain            string  `json:"domain"`
	Complexity        string  `json:"complexity"`
	RequiresFactCheck bool    `json:"requires_fact_checking"`
	RequiresSynthesis bool    `json:"requires_synthesis"`
	Confidence        float64 `json:"confidence"`
}

// RetrieveRequest asks for candidate sources for a query.
type RetrieveRequest struct {
	QueryID string
	Text    string
	Domain  string
	// Source names the retrieval corpus ("web", "database",
	// "knowledge_graph"). Empty means the agent's default corpus.
	Source string
	Limit  int
}

// Source is one retrieved candidate with a relevance score in [0,1].
type Source struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
	Origin    string  `json:"origin"`
}

// Retrieval is the retrieve stage output.
type Retrieval struct {
	Sources []Source `json:"sources"`
	// Origin records which path produced the sources ("external" or
	// "agent"), for provenance.
	Origin string `json:"origin"`
}

// VerifyRequest asks for fact-checking of sources against the query.
type VerifyRequest struct {
	QueryID string
	Text    string
	Sources []Source
}

// Verification is the verify stage output.
type Verification struct {
	Score          float64  `json:"score"`
	Contradictions []string `json:"contradictions"`
	CheckedSources int      `json:"checked_sources"`
}

// SynthesizeRequest asks for an answer composed from verified sources.
type SynthesizeRequest struct {
	QueryID   string
	Text      string
	Sources   []Source
	MaxTokens int
}

// Synthesis is the synthesize stage output.
type Synthesis struct {
	Answer      string         `json:"answer"`
	Method      string         `json:"method"`
	KeyPoints   []string       `json:"key_points"`
	SourceUsage map[string]int `json:"source_usage"`
	Confidence  float64        `json:"confidence"`
}

// AssessRequest asks for quality scoring of a synthesized answer.
type AssessRequest struct {
	QueryID      string
	Text         string
	Answer       string
	Sources      []Source
	Verification *Verification
}

// Assessment is the assess stage output; all scores are in [0,1].
type Assessment struct {
	Confidence   float64 `json:"confidence"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Relevance    float64 `json:"relevance"`
	Overall      float64 `json:"overall"`
}

// AlternativesRequest asks for up to Max alternative answers.
type AlternativesRequest struct {
	QueryID string
	Text    string
	Sources []Source
	Answer  string
	Max     int
}

// Alternative is one alternative answer with its own confidence.
type Alternative struct {
	Answer     string  `json:"answer"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}
