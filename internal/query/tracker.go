package query

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrelworks/queryd/internal/pipeline"
)

// stageProgress maps each pipeline stage to the fraction of the query
// considered done when that stage starts.
var stageProgress = map[pipeline.Stage]float64{
	pipeline.StageClassify:     0.1,
	pipeline.StageRetrieve:     0.3,
	pipeline.StageVerify:       0.5,
	pipeline.StageSynthesize:   0.7,
	pipeline.StageAssess:       0.85,
	pipeline.StageAlternatives: 0.95,
}

// tracked is one query's mutable tracking record. Status never
// regresses: terminal transitions are applied once and later mutations
// are ignored.
type tracked struct {
	info StatusInfo
}

// tracker is the orchestrator's table of known queries, serving
// GetStatus. Entries persist after the query resolves so callers can
// read terminal outcomes.
type tracker struct {
	mu   sync.RWMutex
	byID map[string]*tracked
}

func newTracker() *tracker {
	return &tracker{byID: make(map[string]*tracked)}
}

func (t *tracker) create(queryID string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[queryID] = &tracked{info: StatusInfo{
		QueryID:     queryID,
		Status:      StatusPending,
		Progress:    0,
		CurrentStep: "queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
}

func (t *tracker) processing(queryID string) {
	t.mutate(queryID, func(info *StatusInfo) {
		info.Status = StatusProcessing
		info.CurrentStep = "starting"
	})
}

func (t *tracker) stage(queryID string, stage pipeline.Stage) {
	t.mutate(queryID, func(info *StatusInfo) {
		info.Progress = stageProgress[stage]
		info.CurrentStep = string(stage)
	})
}

func (t *tracker) complete(queryID string) {
	t.mutate(queryID, func(info *StatusInfo) {
		info.Status = StatusCompleted
		info.Progress = 1.0
		info.CurrentStep = "done"
	})
}

func (t *tracker) fail(queryID string, err error) {
	t.mutate(queryID, func(info *StatusInfo) {
		info.Status = StatusFailed
		info.Progress = 1.0
		info.CurrentStep = "failed"
		if err != nil {
			info.ErrorMessage = err.Error()
		}
	})
}

func (t *tracker) mutate(queryID string, fn func(*StatusInfo)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[queryID]
	if !ok {
		return
	}
	if rec.info.Status == StatusCompleted || rec.info.Status == StatusFailed {
		return
	}
	fn(&rec.info)
	rec.info.UpdatedAt = time.Now()
}

// get returns a copy of the tracking record.
func (t *tracker) get(queryID string) (StatusInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.byID[queryID]
	if !ok {
		return StatusInfo{}, fmt.Errorf("%w: %s", ErrNotFound, queryID)
	}
	return rec.info, nil
}
