package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelworks/queryd/internal/agent"
)

// RetrieveFanOut runs the retrieve stage across the named sources
// concurrently, one sub-task per source, and joins before returning.
//
// Partial failure is tolerated: sources that fail are logged and
// excluded from the breakdown. The stage fails only when every source
// fails or yields nothing.
func (e *Executor) RetrieveFanOut(ctx context.Context, queryID, text, domain string, sources []string) (*agent.Retrieval, map[string]int, error) {
	if len(sources) == 0 {
		sources = FanOutSources
	}

	var mu sync.Mutex
	combined := &agent.Retrieval{Origin: "fan_out"}
	breakdown := make(map[string]int, len(sources))
	failures := make(map[string]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for _, source := range sources {
		g.Go(func() error {
			out, err := e.Retrieve(gctx, queryID, text, domain, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Record and continue; the join decides whether the
				// whole stage failed.
				failures[source] = err
				return nil
			}
			combined.Sources = append(combined.Sources, out.Sources...)
			breakdown[source] = len(out.Sources)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, stageErr(StageRetrieve, err)
	}

	for source, err := range failures {
		e.logger.Warn(ctx, "retrieval source failed",
			zap.String("source", source),
			zap.Error(err))
	}

	if len(combined.Sources) == 0 {
		if len(failures) > 0 {
			var first error
			for _, err := range failures {
				first = err
				break
			}
			return nil, nil, stageErr(StageRetrieve, fmt.Errorf("all %d sources failed: %w", len(failures), first))
		}
		return nil, nil, stageErr(StageRetrieve, fmt.Errorf("no sources returned any results"))
	}

	return combined, breakdown, nil
}
