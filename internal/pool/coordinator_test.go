package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/logging"
)

// failingFactory fails construction for configured types.
type failingFactory struct {
	inner agent.Factory
	fail  map[agent.Type]error
}

func (f *failingFactory) Create(ctx context.Context, t agent.Type) (*agent.Agent, error) {
	if err, ok := f.fail[t]; ok {
		return nil, err
	}
	return f.inner.Create(ctx, t)
}

func newTestPool(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = time.Hour
	}
	c, err := NewCoordinator(agent.NewLocalFactory(nil), cfg, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return c
}

func TestAcquireRelease(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "classify:q1")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusBusy, lease.Agent().Status)
	assert.Equal(t, "classify:q1", lease.Agent().CurrentTask)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Busy)
	assert.Equal(t, 0, stats.Idle)

	lease.Release()
	stats = c.Stats()
	assert.Equal(t, 0, stats.Busy)
	assert.Equal(t, 1, stats.Idle)

	snap, ok := c.GetAgentByID(lease.Agent().ID)
	require.True(t, ok)
	assert.Equal(t, agent.StatusIdle, snap.Status)
	assert.Empty(t, snap.CurrentTask)
}

func TestAcquire_ReusesIdleAgent(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	first, err := c.Acquire(ctx, agent.TypeSynthesis, "t1")
	require.NoError(t, err)
	firstID := first.Agent().ID
	first.Release()

	second, err := c.Acquire(ctx, agent.TypeSynthesis, "t2")
	require.NoError(t, err)
	defer second.Release()

	assert.Equal(t, firstID, second.Agent().ID)
	assert.Equal(t, 1, c.Stats().Total)
}

func TestAcquire_NeverReturnsBusyOrError(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	busy, err := c.Acquire(ctx, agent.TypeRetrieval, "t1")
	require.NoError(t, err)
	defer busy.Release()

	errored, err := c.Acquire(ctx, agent.TypeRetrieval, "t2")
	require.NoError(t, err)
	erroredID := errored.Agent().ID
	errored.MarkError("worker crashed")

	third, err := c.Acquire(ctx, agent.TypeRetrieval, "t3")
	require.NoError(t, err)
	defer third.Release()

	assert.NotEqual(t, busy.Agent().ID, third.Agent().ID)
	assert.NotEqual(t, erroredID, third.Agent().ID)
}

func TestAcquire_UnknownType(t *testing.T) {
	c := newTestPool(t, Config{})
	_, err := c.Acquire(context.Background(), agent.Type("alchemist"), "t")
	require.ErrorIs(t, err, ErrUnknownAgentType)
}

func TestAcquire_ConstructionFailure(t *testing.T) {
	boom := errors.New("no workers available")
	factory := &failingFactory{
		inner: agent.NewLocalFactory(nil),
		fail:  map[agent.Type]error{agent.TypeSynthesis: boom},
	}
	c, err := NewCoordinator(factory, Config{IdleThreshold: time.Hour}, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Acquire(ctx, agent.TypeSynthesis, "t")
	require.ErrorIs(t, err, ErrConstruction)

	// Failed construction registers nothing; other types stay usable.
	assert.Equal(t, 0, c.Stats().Total)
	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t")
	require.NoError(t, err)
	lease.Release()
}

func TestAcquire_Exhausted(t *testing.T) {
	c := newTestPool(t, Config{MaxPerType: 1})
	ctx := context.Background()

	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t1")
	require.NoError(t, err)
	defer lease.Release()

	_, err = c.Acquire(ctx, agent.TypeRetrieval, "t2")
	require.ErrorIs(t, err, ErrExhausted)

	// Other types have their own budget.
	other, err := c.Acquire(ctx, agent.TypeSynthesis, "t3")
	require.NoError(t, err)
	other.Release()
}

// slowFactory delays construction to widen the window between the cap
// check and registration.
type slowFactory struct {
	inner agent.Factory
	delay time.Duration
}

func (f *slowFactory) Create(ctx context.Context, t agent.Type) (*agent.Agent, error) {
	time.Sleep(f.delay)
	return f.inner.Create(ctx, t)
}

func TestAcquire_CapHoldsUnderConcurrentConstruction(t *testing.T) {
	factory := &slowFactory{inner: agent.NewLocalFactory(nil), delay: 50 * time.Millisecond}
	c, err := NewCoordinator(factory, Config{IdleThreshold: time.Hour, MaxPerType: 1}, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	ctx := context.Background()

	const n = 4
	results := make([]error, n)
	leases := make([]*Lease, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leases[i], results[i] = c.Acquire(ctx, agent.TypeRetrieval, "t")
		}(i)
	}
	wg.Wait()

	var granted int
	for i, err := range results {
		if err == nil {
			granted++
			leases[i].Release()
			continue
		}
		require.ErrorIs(t, err, ErrExhausted)
	}
	assert.Equal(t, 1, granted, "cap of 1 admits exactly one construction")
	assert.Equal(t, 1, c.Stats().ByType[agent.TypeRetrieval].Total)
}

func TestAcquire_FailedConstructionFreesReservedSlot(t *testing.T) {
	boom := errors.New("spawn failed")
	factory := &failingFactory{
		inner: agent.NewLocalFactory(nil),
		fail:  map[agent.Type]error{agent.TypeRetrieval: boom},
	}
	c, err := NewCoordinator(factory, Config{IdleThreshold: time.Hour, MaxPerType: 1}, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Acquire(ctx, agent.TypeRetrieval, "t1")
	require.ErrorIs(t, err, ErrConstruction)

	// The reservation is returned; the next acquire may construct.
	factory.fail = nil
	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t2")
	require.NoError(t, err)
	lease.Release()
}

func TestLease_ReleaseIdempotent(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	lease, err := c.Acquire(ctx, agent.TypeFactCheck, "t1")
	require.NoError(t, err)
	lease.Release()
	lease.Release()
	lease.MarkError("late error is ignored")

	snap, ok := c.GetAgentByID(lease.Agent().ID)
	require.True(t, ok)
	assert.Equal(t, agent.StatusIdle, snap.Status)
}

func TestCleanup_ReclaimsErrorAgents(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t1")
	require.NoError(t, err)
	id := lease.Agent().ID
	lease.MarkError("bad output")

	reclaimed := c.Cleanup()
	assert.Equal(t, 1, reclaimed)

	_, ok := c.GetAgentByID(id)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().ByType[agent.TypeRetrieval].Total)
}

func TestCleanup_ReclaimsIdleAgents(t *testing.T) {
	c := newTestPool(t, Config{IdleThreshold: time.Nanosecond})
	ctx := context.Background()

	lease, err := c.Acquire(ctx, agent.TypeSynthesis, "t1")
	require.NoError(t, err)
	lease.Release()

	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 0, c.Stats().Total)
}

func TestCleanup_NeverReclaimsBusy(t *testing.T) {
	c := newTestPool(t, Config{IdleThreshold: time.Nanosecond})
	ctx := context.Background()

	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t1")
	require.NoError(t, err)
	defer lease.Release()

	time.Sleep(time.Millisecond)
	assert.Equal(t, 0, c.Cleanup())

	snap, ok := c.GetAgentByID(lease.Agent().ID)
	require.True(t, ok)
	assert.Equal(t, agent.StatusBusy, snap.Status)
}

func TestCleanup_RemainingAgentsAreIdle(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t")
		require.NoError(t, err)
		lease.Release()
	}
	bad, err := c.Acquire(ctx, agent.TypeRetrieval, "t")
	require.NoError(t, err)
	bad.MarkError("nope")

	c.Cleanup()
	stats := c.Stats()
	assert.Equal(t, stats.Total, stats.Idle)
	assert.Zero(t, stats.Error)
	assert.Zero(t, stats.Busy)
}

func TestPoolConservation_ConcurrentAcquireRelease(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t")
				if err != nil {
					t.Error(err)
					return
				}
				lease.Release()
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.Zero(t, stats.Busy, "all leases released, nothing may stay busy")
	assert.Equal(t, stats.Total, stats.Idle)
}

func TestAgentExclusivity_ConcurrentLeases(t *testing.T) {
	c := newTestPool(t, Config{})
	ctx := context.Background()

	const n = 16
	leases := make([]*Lease, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lease, err := c.Acquire(ctx, agent.TypeFactCheck, "t")
			if err != nil {
				t.Error(err)
				return
			}
			leases[i] = lease
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, lease := range leases {
		require.NotNil(t, lease)
		assert.False(t, seen[lease.Agent().ID], "agent leased twice concurrently")
		seen[lease.Agent().ID] = true
		lease.Release()
	}
}

func TestStartCleanup(t *testing.T) {
	c := newTestPool(t, Config{IdleThreshold: time.Nanosecond, CleanupInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lease, err := c.Acquire(ctx, agent.TypeRetrieval, "t")
	require.NoError(t, err)
	lease.Release()

	c.StartCleanup(ctx)
	assert.Eventually(t, func() bool {
		return c.Stats().Total == 0
	}, time.Second, 5*time.Millisecond)
}
