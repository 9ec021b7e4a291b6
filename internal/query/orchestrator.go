package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/cache"
	"github.com/kestrelworks/queryd/internal/events"
	"github.com/kestrelworks/queryd/internal/logging"
	"github.com/kestrelworks/queryd/internal/pipeline"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Cache     *cache.Cache
	Pipeline  *pipeline.Executor
	Validator Validator
	Metrics   *Metrics
	Events    events.Publisher
	CacheTTL  time.Duration
	Logger    *logging.Logger
}

// Orchestrator drives queries through the pipeline.
type Orchestrator struct {
	cache     *cache.Cache
	exec      *pipeline.Executor
	validator Validator
	metrics   *Metrics
	events    events.Publisher
	tracker   *tracker
	cacheTTL  time.Duration
	logger    *logging.Logger
}

// NewOrchestrator validates Options and builds an Orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline executor is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	return &Orchestrator{
		cache:     opts.Cache,
		exec:      opts.Pipeline,
		validator: opts.Validator,
		metrics:   opts.Metrics,
		events:    opts.Events,
		tracker:   newTracker(),
		cacheTTL:  opts.CacheTTL,
		logger:    opts.Logger.Named("query"),
	}, nil
}

// Process runs the basic pipeline: classify, retrieve from one source,
// verify and synthesize as the classification requires.
func (o *Orchestrator) Process(ctx context.Context, text string, qctx Context) (*Result, error) {
	return o.process(ctx, text, qctx, VariantBasic)
}

// ProcessComprehensive runs the full pipeline: multi-source retrieval
// fan-out, verification, synthesis, quality assessment and alternative
// answers.
func (o *Orchestrator) ProcessComprehensive(ctx context.Context, text string, qctx Context) (*Result, error) {
	return o.process(ctx, text, qctx, VariantComprehensive)
}

// GetStatus reports a tracked query's state, progress and current step.
func (o *Orchestrator) GetStatus(queryID string) (StatusInfo, error) {
	return o.tracker.get(queryID)
}

func (o *Orchestrator) process(ctx context.Context, text string, qctx Context, variant Variant) (result *Result, err error) {
	// Validation happens before any query state exists: a rejected
	// input creates no tracking record and records no metric.
	if err := o.validator.Validate(text, qctx); err != nil {
		return nil, err
	}

	queryID := uuid.NewString()
	ctx = logging.WithQueryID(ctx, queryID)
	o.tracker.create(queryID)

	start := time.Now()
	cacheHit := false
	o.metrics.AddInFlight(ctx, 1)
	defer func() {
		o.metrics.AddInFlight(ctx, -1)
		o.metrics.RecordOutcome(ctx, variant, time.Since(start), cacheHit, err == nil)
	}()

	key := cache.Fingerprint(text, qctx.UserID, qctx.SessionID)
	if cached, ok := o.cache.Get(key); ok {
		if prior, ok := cached.(*Result); ok {
			cacheHit = true
			o.tracker.complete(queryID)
			o.logger.Debug(ctx, "cache hit", zap.String("key", key))

			hit := *prior
			hit.QueryID = queryID
			hit.CacheHit = true
			hit.ProcessingTimeMs = time.Since(start).Milliseconds()
			o.publishCompleted(ctx, queryID, variant, &hit, true)
			return &hit, nil
		}
	}

	o.tracker.processing(queryID)
	result, err = o.runPipeline(ctx, queryID, text, qctx, variant)
	if err != nil {
		o.tracker.fail(queryID, err)
		o.events.QueryFailed(ctx, events.Event{
			QueryID:    queryID,
			Variant:    string(variant),
			DurationMs: time.Since(start).Milliseconds(),
			Error:      err.Error(),
		})
		o.logger.Error(ctx, "query failed",
			zap.String("variant", string(variant)),
			zap.Error(err))
		return nil, err
	}

	result.QueryID = queryID
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	// Only completed results are cached; the stored copy never carries
	// the hit flag.
	stored := *result
	stored.CacheHit = false
	if cacheErr := o.cache.Set(key, &stored, o.cacheTTL); cacheErr != nil {
		o.logger.Warn(ctx, "cache write failed", zap.Error(cacheErr))
	}

	o.tracker.complete(queryID)
	o.publishCompleted(ctx, queryID, variant, result, false)
	o.logger.Info(ctx, "query completed",
		zap.String("variant", string(variant)),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("duration_ms", result.ProcessingTimeMs))
	return result, nil
}

// runPipeline executes the stage sequence for one query. Stages run
// sequentially; each stage's output feeds the next.
func (o *Orchestrator) runPipeline(ctx context.Context, queryID, text string, qctx Context, variant Variant) (*Result, error) {
	comprehensive := variant == VariantComprehensive

	o.tracker.stage(queryID, pipeline.StageClassify)
	cls, err := o.exec.Classify(ctx, queryID, text)
	if err != nil {
		return nil, err
	}

	o.tracker.stage(queryID, pipeline.StageRetrieve)
	var (
		retrieval *agent.Retrieval
		breakdown map[string]int
	)
	if comprehensive {
		retrieval, breakdown, err = o.exec.RetrieveFanOut(ctx, queryID, text, cls.Domain, nil)
	} else {
		retrieval, err = o.exec.Retrieve(ctx, queryID, text, cls.Domain, "web")
	}
	if err != nil {
		return nil, err
	}

	var verification *agent.Verification
	if comprehensive || cls.RequiresFactCheck {
		o.tracker.stage(queryID, pipeline.StageVerify)
		verification, err = o.exec.Verify(ctx, queryID, text, retrieval.Sources)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		Sources:         retrieval.Sources,
		SourceBreakdown: breakdown,
	}

	if comprehensive || cls.RequiresSynthesis {
		o.tracker.stage(queryID, pipeline.StageSynthesize)
		synthesis, err := o.exec.Synthesize(ctx, queryID, text, retrieval.Sources, qctx.MaxTokens)
		if err != nil {
			return nil, err
		}
		result.Answer = synthesis.Answer
		result.KeyPoints = synthesis.KeyPoints
		result.Confidence = combineConfidence(synthesis.Confidence, verification)
	} else {
		result.Answer = directAnswer(retrieval.Sources)
		result.Confidence = combineConfidence(cls.Confidence, verification)
	}

	if comprehensive {
		o.tracker.stage(queryID, pipeline.StageAssess)
		assessment, err := o.exec.Assess(ctx, queryID, text, result.Answer, retrieval.Sources, verification)
		if err != nil {
			return nil, err
		}
		result.Quality = assessment

		o.tracker.stage(queryID, pipeline.StageAlternatives)
		alternatives, err := o.exec.Alternatives(ctx, queryID, text, result.Answer, retrieval.Sources)
		if err != nil {
			return nil, err
		}
		result.Alternatives = alternatives
	}

	if result.Confidence < qctx.ConfidenceThreshold {
		o.logger.Warn(ctx, "answer confidence below requested threshold",
			zap.Float64("confidence", result.Confidence),
			zap.Float64("threshold", qctx.ConfidenceThreshold))
	}
	return result, nil
}

func (o *Orchestrator) publishCompleted(ctx context.Context, queryID string, variant Variant, r *Result, cacheHit bool) {
	o.events.QueryCompleted(ctx, events.Event{
		QueryID:    queryID,
		Variant:    string(variant),
		CacheHit:   cacheHit,
		DurationMs: r.ProcessingTimeMs,
		Confidence: r.Confidence,
	})
}

// combineConfidence blends a stage confidence with the verification
// score when one exists.
func combineConfidence(base float64, verification *agent.Verification) float64 {
	c := base
	if verification != nil {
		c = (base + verification.Score) / 2
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// directAnswer returns the most relevant snippet when the
// classification says no synthesis is needed.
func directAnswer(sources []agent.Source) string {
	best := ""
	bestScore := -1.0
	for _, s := range sources {
		if s.Relevance > bestScore && s.Snippet != "" {
			best = s.Snippet
			bestScore = s.Relevance
		}
	}
	if best == "" {
		return "No answer could be derived from the retrieved sources."
	}
	return best
}
