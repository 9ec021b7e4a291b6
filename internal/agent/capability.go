package agent

import "context"

// Capability interfaces. A worker implements the subset matching its type:
//
//	retrieval:  Classifier, Retriever
//	fact_check: Verifier, Assessor
//	synthesis:  Synthesizer, AlternativesGenerator

// Classifier tags a query with intent, domain, and complexity.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (*Classification, error)
}

// Retriever fetches candidate sources for a query.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) (*Retrieval, error)
}

// Verifier fact-checks sources against a claim.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*Verification, error)
}

// Synthesizer composes an answer from verified sources.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (*Synthesis, error)
}

// Assessor scores the quality of a synthesized answer.
type Assessor interface {
	Assess(ctx context.Context, req AssessRequest) (*Assessment, error)
}

// AlternativesGenerator produces alternative answers.
type AlternativesGenerator interface {
	Alternatives(ctx context.Context, req AlternativesRequest) ([]Alternative, error)
}
