package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextFixedTimeAfter(t *testing.T) {
	anchor := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	interval := 7 * 24 * time.Hour

	// Just after the anchor the next run is one full interval out.
	next := nextFixedTimeAfter(anchor, interval, anchor.Add(time.Minute))
	assert.Equal(t, anchor.Add(interval), next)

	// Several intervals later it still lands on the anchor grid.
	next = nextFixedTimeAfter(anchor, interval, anchor.Add(3*interval+time.Hour))
	assert.Equal(t, anchor.Add(4*interval), next)

	// Before the anchor the first run is the anchor itself.
	next = nextFixedTimeAfter(anchor, interval, anchor.Add(-time.Hour))
	assert.Equal(t, anchor, next)
}

func TestStartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, "test", time.Hour)
	s.RunImmediately = true

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Start(func() { runs.Add(1) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestStartRejectsZeroInterval(t *testing.T) {
	s := NewIntervalScheduler(context.Background(), "bad", 0)
	done := make(chan struct{})
	go func() {
		s.Start(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero interval should return immediately")
	}
}
