package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k1", "v1", time.Minute))

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestSet_InvalidTTL(t *testing.T) {
	c := New()
	require.ErrorIs(t, c.Set("k", "v", 0), ErrInvalidTTL)
	require.ErrorIs(t, c.Set("k", "v", -time.Second), ErrInvalidTTL)
}

func TestSet_Upsert(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "old", time.Minute))
	require.NoError(t, c.Set("k", "new", time.Minute))

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Stats().Total)
}

func TestGet_ExpiredIsAbsentAndEvicted(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "v", time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	// Eviction happened as a side effect of the read.
	assert.Equal(t, 0, c.Stats().Total)
}

func TestDelete(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "v", time.Minute))
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
}

func TestClear(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("a", 1, time.Minute))
	require.NoError(t, c.Set("b", 2, time.Minute))
	c.Clear()
	assert.Equal(t, 0, c.Stats().Total)
}

func TestInvalidatePattern(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("query:user1:aaa", 1, time.Minute))
	require.NoError(t, c.Set("query:user1:bbb", 2, time.Minute))
	require.NoError(t, c.Set("query:user2:ccc", 3, time.Minute))

	count, err := c.InvalidatePattern(`^query:user1:`)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, ok := c.Get("query:user2:ccc")
	assert.True(t, ok)
}

func TestInvalidatePattern_BadRegex(t *testing.T) {
	c := New()
	_, err := c.InvalidatePattern(`([`)
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("live", "value", time.Minute))
	require.NoError(t, c.Set("dead", "value", time.Nanosecond))
	time.Sleep(time.Millisecond)

	s := c.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Expired)
	assert.Greater(t, s.ApproxSize, 0)
}

func TestPurgeExpired(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("live", 1, time.Minute))
	require.NoError(t, c.Set("dead1", 1, time.Nanosecond))
	require.NoError(t, c.Set("dead2", 1, time.Nanosecond))
	time.Sleep(time.Millisecond)

	assert.Equal(t, 2, c.purgeExpired())
	assert.Equal(t, 1, c.Stats().Total)
}

func TestStartSweep(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("dead", 1, time.Nanosecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartSweep(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats().Total == 0
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%7)
				_ = c.Set(key, i, time.Minute)
				c.Get(key)
				if j%10 == 0 {
					c.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("What is the capital of France?", "u1", "s1")
	b := Fingerprint("  what is   the capital of FRANCE? ", "u1", "s1")
	assert.Equal(t, a, b, "normalization must make these collide")

	otherUser := Fingerprint("What is the capital of France?", "u2", "s1")
	assert.NotEqual(t, a, otherUser)

	otherSession := Fingerprint("What is the capital of France?", "u1", "s2")
	assert.NotEqual(t, a, otherSession)

	otherText := Fingerprint("What is the capital of Spain?", "u1", "s1")
	assert.NotEqual(t, a, otherText)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello   WORLD \n"))
	assert.Equal(t, "", Normalize("   "))
}
