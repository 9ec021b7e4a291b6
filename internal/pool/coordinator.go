package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/logging"
)

// Errors for pool operations.
var (
	ErrUnknownAgentType = errors.New("unknown agent type")
	ErrConstruction     = errors.New("agent construction failed")
	ErrExhausted        = errors.New("agent pool exhausted for type")
)

// Config holds pool behavior settings.
type Config struct {
	// IdleThreshold is how long an agent may sit idle before the
	// cleanup sweep reclaims it. Reclamation is keyed off idle
	// duration, not total age, so busy long-lived agents survive.
	IdleThreshold time.Duration
	// CleanupInterval is the period of the background sweep.
	CleanupInterval time.Duration
	// MaxPerType caps live agents per type; 0 means unlimited.
	MaxPerType int
}

// TypeStats is the per-type breakdown returned by Stats.
type TypeStats struct {
	Idle  int `json:"idle"`
	Busy  int `json:"busy"`
	Error int `json:"error"`
	Total int `json:"total"`
}

// Stats aggregates pool occupancy by type and status.
type Stats struct {
	ByType map[agent.Type]TypeStats `json:"by_type"`
	Idle   int                      `json:"idle"`
	Busy   int                      `json:"busy"`
	Error  int                      `json:"error"`
	Total  int                      `json:"total"`
}

// entry tracks one pooled agent plus its idle bookkeeping.
type entry struct {
	agent     *agent.Agent
	idleSince time.Time
}

// Coordinator creates, tracks, leases, and reclaims agent instances.
//
// All index mutations happen under a single mutex; critical sections
// are short and never perform I/O. Agent construction runs outside the
// lock.
type Coordinator struct {
	factory agent.Factory
	cfg     Config
	logger  *logging.Logger

	mu      sync.Mutex
	byID    map[string]*entry
	pending map[agent.Type]int
}

// NewCoordinator creates a pool over the given factory.
func NewCoordinator(factory agent.Factory, cfg Config, logger *logging.Logger) (*Coordinator, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory is required")
	}
	if cfg.IdleThreshold <= 0 {
		return nil, fmt.Errorf("idle threshold must be > 0")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Coordinator{
		factory: factory,
		cfg:     cfg,
		logger:  logger.Named("pool"),
		byID:    make(map[string]*entry),
		pending: make(map[agent.Type]int),
	}, nil
}

// Acquire returns a lease on an idle agent of the given type, creating
// a new agent through the factory when none is idle. The returned
// agent is marked busy with taskRef as its current task. Acquire never
// returns an agent that is busy or in the error state.
func (c *Coordinator) Acquire(ctx context.Context, t agent.Type, taskRef string) (*Lease, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, t)
	}

	c.mu.Lock()
	var live int
	for _, e := range c.byID {
		if e.agent.Type != t {
			continue
		}
		live++
		if e.agent.Status == agent.StatusIdle {
			c.markBusyLocked(e, taskRef)
			c.mu.Unlock()
			return &Lease{c: c, agent: e.agent}, nil
		}
	}
	// Reserve the slot before unlocking so concurrent acquires of the
	// same type count in-flight constructions against the cap.
	live += c.pending[t]
	if c.cfg.MaxPerType > 0 && live >= c.cfg.MaxPerType {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (%d live)", ErrExhausted, t, live)
	}
	c.pending[t]++
	c.mu.Unlock()

	// No idle agent; construct outside the lock.
	a, err := c.factory.Create(ctx, t)
	if err != nil {
		c.mu.Lock()
		c.pending[t]--
		c.mu.Unlock()
		if errors.Is(err, agent.ErrUnknownType) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, t)
		}
		// The slot is not registered on construction failure.
		return nil, fmt.Errorf("%w: %v", ErrConstruction, err)
	}

	c.mu.Lock()
	c.pending[t]--
	e := &entry{agent: a, idleSince: time.Now()}
	c.byID[a.ID] = e
	c.markBusyLocked(e, taskRef)
	c.mu.Unlock()

	c.logger.Debug(ctx, "agent created",
		zap.String("agent_id", a.ID),
		zap.String("agent_type", string(t)))
	return &Lease{c: c, agent: a}, nil
}

// markBusyLocked transitions an idle agent to busy. Caller holds c.mu.
func (c *Coordinator) markBusyLocked(e *entry, taskRef string) {
	e.agent.Status = agent.StatusBusy
	e.agent.CurrentTask = taskRef
	e.agent.UpdatedAt = time.Now()
}

// release transitions a leased agent back to idle.
func (c *Coordinator) release(a *agent.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[a.ID]
	if !ok {
		return // reclaimed while leased under MarkError; nothing to do
	}
	if e.agent.Status != agent.StatusBusy {
		return
	}
	e.agent.Status = agent.StatusIdle
	e.agent.CurrentTask = ""
	e.agent.UpdatedAt = time.Now()
	e.idleSince = time.Now()
}

// markError transitions a leased agent to the error state. Such agents
// are never returned by Acquire and are destroyed by the next sweep.
func (c *Coordinator) markError(a *agent.Agent, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[a.ID]
	if !ok {
		return
	}
	e.agent.Status = agent.StatusError
	e.agent.CurrentTask = ""
	e.agent.ErrorReason = reason
	e.agent.UpdatedAt = time.Now()
}

// Cleanup sweeps all agents, destroying any in the error state and any
// idle longer than the configured threshold. Busy agents are never
// reclaimed. Returns the number of agents destroyed.
func (c *Coordinator) Cleanup() int {
	now := time.Now()

	c.mu.Lock()
	var reclaimed []string
	for id, e := range c.byID {
		switch e.agent.Status {
		case agent.StatusBusy:
			continue
		case agent.StatusError:
			reclaimed = append(reclaimed, id)
		case agent.StatusIdle:
			if now.Sub(e.idleSince) > c.cfg.IdleThreshold {
				reclaimed = append(reclaimed, id)
			}
		}
	}
	for _, id := range reclaimed {
		delete(c.byID, id)
	}
	c.mu.Unlock()

	if len(reclaimed) > 0 {
		c.logger.Info(context.Background(), "cleanup reclaimed agents",
			zap.Int("count", len(reclaimed)))
	}
	return len(reclaimed)
}

// StartCleanup runs Cleanup on a background ticker until ctx is done.
func (c *Coordinator) StartCleanup(ctx context.Context) {
	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// GetAgentByID returns a snapshot of the agent with the given ID.
func (c *Coordinator) GetAgentByID(id string) (agent.Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return agent.Agent{}, false
	}
	return e.agent.Snapshot(), true
}

// Stats returns occupancy counts by type and status.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{ByType: make(map[agent.Type]TypeStats)}
	for _, e := range c.byID {
		ts := stats.ByType[e.agent.Type]
		switch e.agent.Status {
		case agent.StatusIdle:
			ts.Idle++
			stats.Idle++
		case agent.StatusBusy:
			ts.Busy++
			stats.Busy++
		case agent.StatusError:
			ts.Error++
			stats.Error++
		}
		ts.Total++
		stats.Total++
		stats.ByType[e.agent.Type] = ts
	}
	return stats
}
