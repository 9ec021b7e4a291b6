package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a factory is asked for a type it
// cannot construct.
var ErrUnknownType = errors.New("unknown agent type")

// Factory constructs agent instances on demand for the pool.
// Construction may fail; errors propagate to the acquiring caller.
type Factory interface {
	Create(ctx context.Context, t Type) (*Agent, error)
}

// LocalFactory builds agents backed by in-process workers.
type LocalFactory struct {
	corpus CorpusSearcher
}

// NewLocalFactory creates a factory for local agents. corpus may be nil;
// retrieval agents then fall back to a deterministic stub corpus.
func NewLocalFactory(corpus CorpusSearcher) *LocalFactory {
	return &LocalFactory{corpus: corpus}
}

// Create constructs a new agent of the given type.
func (f *LocalFactory) Create(_ context.Context, t Type) (*Agent, error) {
	switch t {
	case TypeRetrieval:
		return New(t, NewLocalRetrievalWorker(f.corpus), Capabilities{
			Inputs:             []string{"query_text"},
			Outputs:            []string{"classification", "sources"},
			MaxConcurrentTasks: 1,
		})
	case TypeSynthesis:
		return New(t, NewLocalSynthesisWorker(), Capabilities{
			Inputs:             []string{"query_text", "sources"},
			Outputs:            []string{"answer", "alternatives"},
			MaxConcurrentTasks: 1,
		})
	case TypeFactCheck:
		return New(t, NewLocalFactCheckWorker(), Capabilities{
			Inputs:             []string{"query_text", "sources", "answer"},
			Outputs:            []string{"verification", "assessment"},
			MaxConcurrentTasks: 1,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}
