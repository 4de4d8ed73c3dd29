package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/access-service/internal/repository/memory"
)

const cooldown = 3 * time.Second

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// BackendSuite runs the same sliding window checks against each in-process backend.
type BackendSuite struct {
	suite.Suite
	newBackend func(now func() time.Time) Deduplicator
	clock      *clock
	dedup      Deduplicator
}

func (s *BackendSuite) SetupTest() {
	s.clock = &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s.dedup = s.newBackend(s.clock.Now)
}

func (s *BackendSuite) tap(terminalID, cardUID string) Result {
	res, err := s.dedup.IsDuplicateAndRecordTap(context.Background(), terminalID, cardUID, cooldown)
	s.Require().NoError(err)
	return res
}

func (s *BackendSuite) TestFirstTapIsNotDuplicate() {
	res := s.tap("t1", "UID1")
	s.False(res.IsDuplicate)
	s.Nil(res.Delta)
	s.Equal(cooldown, res.Cooldown)
}

func (s *BackendSuite) TestSlidingWindow() {
	s.tap("t1", "UID1")

	s.clock.Advance(100 * time.Millisecond)
	second := s.tap("t1", "UID1")
	s.True(second.IsDuplicate)
	s.Require().NotNil(second.Delta)
	s.Equal(100*time.Millisecond, *second.Delta)

	s.clock.Advance(3100 * time.Millisecond)
	third := s.tap("t1", "UID1")
	s.False(third.IsDuplicate)
}

func (s *BackendSuite) TestRepeatedBounceKeepsSliding() {
	s.tap("t1", "UID1")
	for range 5 {
		s.clock.Advance(2 * time.Second)
		s.True(s.tap("t1", "UID1").IsDuplicate)
	}
}

func (s *BackendSuite) TestExactCooldownIsNotDuplicate() {
	s.tap("t1", "UID1")
	s.clock.Advance(cooldown)
	s.False(s.tap("t1", "UID1").IsDuplicate)
}

func (s *BackendSuite) TestKeysAreIsolated() {
	s.tap("t1", "UID1")
	s.clock.Advance(10 * time.Millisecond)
	s.False(s.tap("t2", "UID1").IsDuplicate)
	s.False(s.tap("t1", "UID2").IsDuplicate)
}

func TestMemoryDeduplicator(t *testing.T) {
	suite.Run(t, &BackendSuite{newBackend: func(now func() time.Time) Deduplicator {
		d := NewMemoryDeduplicator(time.Minute)
		d.now = now
		return d
	}})
}

func TestStoreDeduplicator(t *testing.T) {
	suite.Run(t, &BackendSuite{newBackend: func(now func() time.Time) Deduplicator {
		d := NewStoreDeduplicator(memory.New().Repos().Cooldowns)
		d.now = now
		return d
	}})
}

func TestMemoryDeduplicatorConcurrentFirstTaps(t *testing.T) {
	d := NewMemoryDeduplicator(time.Minute)
	fixed := time.Now()
	d.now = func() time.Time { return fixed }

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.IsDuplicateAndRecordTap(context.Background(), "t1", "UID1", cooldown)
			if err == nil && !res.IsDuplicate {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}

type brokenBackend struct{}

func (brokenBackend) IsDuplicateAndRecordTap(context.Context, string, string, time.Duration) (Result, error) {
	return Result{IsDuplicate: true}, errors.New("connection refused")
}

type countingRecorder struct{ n int }

func (c *countingRecorder) IncrementDedupFailOpen() { c.n++ }

func TestFailOpenSwallowsBackendErrors(t *testing.T) {
	rec := &countingRecorder{}
	d := NewFailOpen(brokenBackend{}, "redis", nil, rec)

	res, err := d.IsDuplicateAndRecordTap(context.Background(), "t1", "UID1", cooldown)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.Equal(t, cooldown, res.Cooldown)
	assert.Equal(t, 1, rec.n)
}

func TestStoreDeduplicatorPurge(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	d := NewStoreDeduplicator(memory.New().Repos().Cooldowns)
	d.now = c.Now

	_, err := d.IsDuplicateAndRecordTap(context.Background(), "t1", "UID1", cooldown)
	require.NoError(t, err)

	c.Advance(cooldown + ExpiryMargin + time.Millisecond)
	n, err := d.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
