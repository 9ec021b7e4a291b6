package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/logging"
	"github.com/kestrelworks/queryd/internal/pool"
)

// Stage names one step of the query pipeline.
type Stage string

const (
	StageClassify     Stage = "classify"
	StageRetrieve     Stage = "retrieve"
	StageVerify       Stage = "verify"
	StageSynthesize   Stage = "synthesize"
	StageAssess       Stage = "assess"
	StageAlternatives Stage = "alternatives"
)

// Errors for stage execution.
var (
	ErrStageExecution = errors.New("stage execution failed")
	ErrTimeout        = errors.New("stage timed out")
)

// FanOutSources are the named corpora the comprehensive pipeline
// queries in parallel before verification.
var FanOutSources = []string{"web", "database", "knowledge_graph"}

// Config holds pipeline execution settings.
type Config struct {
	// StageTimeout bounds every agent invocation.
	StageTimeout time.Duration
	// ExternalTimeout bounds every external microservice call.
	ExternalTimeout time.Duration
	// PreferExternal makes the external client the primary path for
	// retrieval and synthesis; the local agent is the one fallback.
	// When false the order is reversed.
	PreferExternal bool
	// MaxAlternatives caps the alternatives stage output.
	MaxAlternatives int
	// RetrievalLimit caps sources per retrieval call.
	RetrievalLimit int
}

// RetrievalClient is an optional external retrieval microservice.
type RetrievalClient interface {
	FetchSources(ctx context.Context, text, source string, limit int) ([]agent.Source, error)
}

// SynthesisClient is an optional external synthesis microservice.
type SynthesisClient interface {
	Compose(ctx context.Context, text string, sources []agent.Source, maxTokens int) (*agent.Synthesis, error)
}

// Executor drives individual pipeline stages against the agent pool.
type Executor struct {
	pool      *pool.Coordinator
	retrieval RetrievalClient
	synthesis SynthesisClient
	cfg       Config
	logger    *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetrievalClient attaches an external retrieval service.
func WithRetrievalClient(c RetrievalClient) Option {
	return func(e *Executor) { e.retrieval = c }
}

// WithSynthesisClient attaches an external synthesis service.
func WithSynthesisClient(c SynthesisClient) Option {
	return func(e *Executor) { e.synthesis = c }
}

// NewExecutor creates a stage executor over the given pool.
func NewExecutor(p *pool.Coordinator, cfg Config, logger *logging.Logger, opts ...Option) (*Executor, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.StageTimeout <= 0 {
		return nil, fmt.Errorf("stage timeout must be > 0")
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = cfg.StageTimeout
	}
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = 5
	}

	e := &Executor{pool: p, cfg: cfg, logger: logger.Named("pipeline")}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// stageErr wraps err with the stage name and the execution sentinel,
// mapping deadline expiry to ErrTimeout.
func stageErr(stage Stage, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: stage %s: %w", ErrStageExecution, ErrTimeout, stage, err)
	}
	return fmt.Errorf("%w: stage %s: %w", ErrStageExecution, stage, err)
}

// Classify runs the classify stage on a retrieval agent.
func (e *Executor) Classify(ctx context.Context, queryID, text string) (*agent.Classification, error) {
	lease, err := e.pool.Acquire(ctx, agent.TypeRetrieval, fmt.Sprintf("%s:%s", StageClassify, queryID))
	if err != nil {
		return nil, stageErr(StageClassify, err)
	}
	defer lease.Release()

	classifier, ok := lease.Worker().(agent.Classifier)
	if !ok {
		lease.MarkError("worker lacks classify capability")
		return nil, stageErr(StageClassify, fmt.Errorf("retrieval agent lacks classify capability"))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	out, err := classifier.Classify(callCtx, agent.ClassifyRequest{QueryID: queryID, Text: text})
	if err != nil {
		lease.MarkError(err.Error())
		return nil, stageErr(StageClassify, err)
	}
	return out, nil
}

// Retrieve runs the retrieve stage for one named source, trying the
// primary path and at most one fallback.
func (e *Executor) Retrieve(ctx context.Context, queryID, text, domain, source string) (*agent.Retrieval, error) {
	external := func(ctx context.Context) (*agent.Retrieval, error) {
		if e.retrieval == nil {
			return nil, fmt.Errorf("no external retrieval client configured")
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
		defer cancel()
		sources, err := e.retrieval.FetchSources(callCtx, text, source, e.cfg.RetrievalLimit)
		if err != nil {
			return nil, err
		}
		return &agent.Retrieval{Sources: sources, Origin: "external"}, nil
	}

	local := func(ctx context.Context) (*agent.Retrieval, error) {
		lease, err := e.pool.Acquire(ctx, agent.TypeRetrieval, fmt.Sprintf("%s:%s:%s", StageRetrieve, source, queryID))
		if err != nil {
			return nil, err
		}
		defer lease.Release()

		retriever, ok := lease.Worker().(agent.Retriever)
		if !ok {
			lease.MarkError("worker lacks retrieve capability")
			return nil, fmt.Errorf("retrieval agent lacks retrieve capability")
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
		defer cancel()
		out, err := retriever.Retrieve(callCtx, agent.RetrieveRequest{
			QueryID: queryID,
			Text:    text,
			Domain:  domain,
			Source:  source,
			Limit:   e.cfg.RetrievalLimit,
		})
		if err != nil {
			lease.MarkError(err.Error())
			return nil, err
		}
		return out, nil
	}

	return runWithFallback(ctx, e, StageRetrieve, external, local)
}

// Verify runs the verify stage on a fact-check agent.
func (e *Executor) Verify(ctx context.Context, queryID, text string, sources []agent.Source) (*agent.Verification, error) {
	lease, err := e.pool.Acquire(ctx, agent.TypeFactCheck, fmt.Sprintf("%s:%s", StageVerify, queryID))
	if err != nil {
		return nil, stageErr(StageVerify, err)
	}
	defer lease.Release()

	verifier, ok := lease.Worker().(agent.Verifier)
	if !ok {
		lease.MarkError("worker lacks verify capability")
		return nil, stageErr(StageVerify, fmt.Errorf("fact-check agent lacks verify capability"))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	out, err := verifier.Verify(callCtx, agent.VerifyRequest{QueryID: queryID, Text: text, Sources: sources})
	if err != nil {
		lease.MarkError(err.Error())
		return nil, stageErr(StageVerify, err)
	}
	return out, nil
}

// Synthesize runs the synthesize stage, trying the primary path and at
// most one fallback.
func (e *Executor) Synthesize(ctx context.Context, queryID, text string, sources []agent.Source, maxTokens int) (*agent.Synthesis, error) {
	external := func(ctx context.Context) (*agent.Synthesis, error) {
		if e.synthesis == nil {
			return nil, fmt.Errorf("no external synthesis client configured")
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
		defer cancel()
		return e.synthesis.Compose(callCtx, text, sources, maxTokens)
	}

	local := func(ctx context.Context) (*agent.Synthesis, error) {
		lease, err := e.pool.Acquire(ctx, agent.TypeSynthesis, fmt.Sprintf("%s:%s", StageSynthesize, queryID))
		if err != nil {
			return nil, err
		}
		defer lease.Release()

		synthesizer, ok := lease.Worker().(agent.Synthesizer)
		if !ok {
			lease.MarkError("worker lacks synthesize capability")
			return nil, fmt.Errorf("synthesis agent lacks synthesize capability")
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
		defer cancel()
		out, err := synthesizer.Synthesize(callCtx, agent.SynthesizeRequest{
			QueryID:   queryID,
			Text:      text,
			Sources:   sources,
			MaxTokens: maxTokens,
		})
		if err != nil {
			lease.MarkError(err.Error())
			return nil, err
		}
		return out, nil
	}

	return runWithFallback(ctx, e, StageSynthesize, external, local)
}

// Assess runs the assess stage on a fact-check agent.
func (e *Executor) Assess(ctx context.Context, queryID, text, answer string, sources []agent.Source, verification *agent.Verification) (*agent.Assessment, error) {
	lease, err := e.pool.Acquire(ctx, agent.TypeFactCheck, fmt.Sprintf("%s:%s", StageAssess, queryID))
	if err != nil {
		return nil, stageErr(StageAssess, err)
	}
	defer lease.Release()

	assessor, ok := lease.Worker().(agent.Assessor)
	if !ok {
		lease.MarkError("worker lacks assess capability")
		return nil, stageErr(StageAssess, fmt.Errorf("fact-check agent lacks assess capability"))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	out, err := assessor.Assess(callCtx, agent.AssessRequest{
		QueryID:      queryID,
		Text:         text,
		Answer:       answer,
		Sources:      sources,
		Verification: verification,
	})
	if err != nil {
		lease.MarkError(err.Error())
		return nil, stageErr(StageAssess, err)
	}
	return out, nil
}

// Alternatives runs the alternatives stage on a synthesis agent.
func (e *Executor) Alternatives(ctx context.Context, queryID, text, answer string, sources []agent.Source) ([]agent.Alternative, error) {
	if e.cfg.MaxAlternatives <= 0 {
		return nil, nil
	}

	lease, err := e.pool.Acquire(ctx, agent.TypeSynthesis, fmt.Sprintf("%s:%s", StageAlternatives, queryID))
	if err != nil {
		return nil, stageErr(StageAlternatives, err)
	}
	defer lease.Release()

	gen, ok := lease.Worker().(agent.AlternativesGenerator)
	if !ok {
		lease.MarkError("worker lacks alternatives capability")
		return nil, stageErr(StageAlternatives, fmt.Errorf("synthesis agent lacks alternatives capability"))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	out, err := gen.Alternatives(callCtx, agent.AlternativesRequest{
		QueryID: queryID,
		Text:    text,
		Answer:  answer,
		Sources: sources,
		Max:     e.cfg.MaxAlternatives,
	})
	if err != nil {
		lease.MarkError(err.Error())
		return nil, stageErr(StageAlternatives, err)
	}
	return out, nil
}

// runWithFallback tries the primary path and at most one fallback,
// ordered by PreferExternal. Both failing fails the stage with the
// joined errors.
func runWithFallback[T any](ctx context.Context, e *Executor, stage Stage, external, local func(context.Context) (T, error)) (T, error) {
	primary, secondary := local, external
	if e.cfg.PreferExternal {
		primary, secondary = external, local
	}

	out, primaryErr := primary(ctx)
	if primaryErr == nil {
		return out, nil
	}
	e.logFallback(ctx, stage, primaryErr)

	out, fallbackErr := secondary(ctx)
	if fallbackErr == nil {
		return out, nil
	}

	var zero T
	return zero, stageErr(stage, errors.Join(primaryErr, fallbackErr))
}

// logFallback records a primary-path failure before the fallback runs.
func (e *Executor) logFallback(ctx context.Context, stage Stage, err error) {
	e.logger.Warn(ctx, "primary path failed, trying fallback",
		zap.String("stage", string(stage)),
		zap.Error(err))
}
