package reputation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRedis is an in-memory stand-in for the Redis store.
type memRedis struct {
	mu     sync.Mutex
	data   map[string]string
	failed bool
	sets   int
}

func newMemRedis() *memRedis {
	return &memRedis{data: make(map[string]string)}
}

func (m *memRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memRedis) GetMulti(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = m.data[k]
	}
	return out, nil
}

func (m *memRedis) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return fmt.Errorf("redis unavailable")
	}
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memRedis) SetMulti(_ context.Context, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return fmt.Errorf("redis unavailable")
	}
	for k, v := range kv {
		m.data[k] = v
	}
	// One batched write counts as one persist, however many keys it carries.
	m.sets++
	return nil
}

func (m *memRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestNewStoreRejectsBadAlpha(t *testing.T) {
	for _, alpha := range []float64{0, -0.1, 1.5} {
		_, err := NewStore(context.Background(), newMemRedis(), alpha)
		require.Error(t, err, "alpha %v", alpha)
	}
}

func TestUpdateLazyInit(t *testing.T) {
	s, err := NewStore(context.Background(), newMemRedis(), 0.05)
	require.NoError(t, err)

	// First reward initializes the score to the reward itself, not to
	// alpha*reward.
	next, err := s.Update(context.Background(), 1, 0.7)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, next, 1e-9)
}

func TestUpdateMovingAverage(t *testing.T) {
	s, err := NewStore(context.Background(), newMemRedis(), 0.05)
	require.NoError(t, err)

	_, err = s.Update(context.Background(), 1, 0.4)
	require.NoError(t, err)
	next, err := s.Update(context.Background(), 1, 0.8)
	require.NoError(t, err)
	assert.InDelta(t, 0.05*0.8+0.95*0.4, next, 1e-9)
}

func TestScoresStayInBounds(t *testing.T) {
	s, err := NewStore(context.Background(), newMemRedis(), 0.3)
	require.NoError(t, err)

	rewards := []float64{0, 1, 0.5, 2.5, -1, 0.9}
	for _, r := range rewards {
		next, err := s.Update(context.Background(), 1, r)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next, 0.0)
		assert.LessOrEqual(t, next, 1.0)
	}
}

func TestConvergenceToConstantReward(t *testing.T) {
	s, err := NewStore(context.Background(), newMemRedis(), 0.05)
	require.NoError(t, err)

	_, err = s.Update(context.Background(), 1, 0.1)
	require.NoError(t, err)

	var last float64
	for range 500 {
		last, err = s.Update(context.Background(), 1, 0.9)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.9, last, 1e-6)
}

func TestUpdateBatchPersistsOnce(t *testing.T) {
	r := newMemRedis()
	s, err := NewStore(context.Background(), r, 0.05)
	require.NoError(t, err)

	err = s.UpdateBatch(context.Background(), map[int64]float64{1: 0.5, 2: 0.7, 3: 0.2})
	require.NoError(t, err)

	assert.Equal(t, 1, r.sets)
	assert.Equal(t, 1, s.Step())
	assert.Len(t, s.Snapshot(), 3)
}

func TestPersistenceRoundTrip(t *testing.T) {
	r := newMemRedis()

	s1, err := NewStore(context.Background(), r, 0.05)
	require.NoError(t, err)
	_, err = s1.Update(context.Background(), 1, 0.6)
	require.NoError(t, err)
	_, err = s1.Update(context.Background(), 2, 0.3)
	require.NoError(t, err)

	// A fresh store against the same backend sees the same vector.
	s2, err := NewStore(context.Background(), r, 0.05)
	require.NoError(t, err)
	assert.Equal(t, s1.Step(), s2.Step())
	assert.InDelta(t, 0.6, s2.Snapshot()[1], 1e-9)
	assert.InDelta(t, 0.3, s2.Snapshot()[2], 1e-9)
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	r := newMemRedis()
	s, err := NewStore(context.Background(), r, 0.05)
	require.NoError(t, err)

	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()

	next, err := s.Update(context.Background(), 1, 0.8)
	require.Error(t, err)
	assert.InDelta(t, 0.8, next, 1e-9)
	assert.InDelta(t, 0.8, s.Snapshot()[1], 1e-9)
}

func TestConcurrentUpdates(t *testing.T) {
	s, err := NewStore(context.Background(), newMemRedis(), 0.05)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for uid := int64(0); uid < 8; uid++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			for range 50 {
				_, _ = s.Update(context.Background(), uid, 0.5)
			}
		}(uid)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap, 8)
	for uid, score := range snap {
		assert.GreaterOrEqual(t, score, 0.0, "uid %d", uid)
		assert.LessOrEqual(t, score, 1.0, "uid %d", uid)
	}
	assert.Equal(t, 400, s.Step())
}

func TestReset(t *testing.T) {
	s, err := NewStore(context.Background(), newMemRedis(), 0.05)
	require.NoError(t, err)

	_, err = s.Update(context.Background(), 1, 0.5)
	require.NoError(t, err)
	require.NoError(t, s.Reset(context.Background()))

	assert.Empty(t, s.Snapshot())
	assert.Equal(t, 0, s.Step())
}

func TestResetDeletesPersistedKeys(t *testing.T) {
	r := newMemRedis()
	s, err := NewStore(context.Background(), r, 0.05)
	require.NoError(t, err)

	_, err = s.Update(context.Background(), 1, 0.5)
	require.NoError(t, err)
	require.NoError(t, s.Reset(context.Background()))

	r.mu.Lock()
	_, scoresLeft := r.data[scoresKey]
	_, stepLeft := r.data[stepKey]
	r.mu.Unlock()
	assert.False(t, scoresLeft, "scores key must be deleted on reset")
	assert.False(t, stepLeft, "step key must be deleted on reset")

	// A fresh store against the wiped backend starts from nothing.
	s2, err := NewStore(context.Background(), r, 0.05)
	require.NoError(t, err)
	assert.Empty(t, s2.Snapshot())
	assert.Equal(t, 0, s2.Step())
}
