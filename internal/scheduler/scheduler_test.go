package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsInvalidSchedule(t *testing.T) {
	s := New(context.Background())
	err := s.Add("not a schedule", "test", func(ctx context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestSchedulerFiresSweeps(t *testing.T) {
	s := New(context.Background())

	var runs int32
	require.NoError(t, s.Add("@every 50ms", "test", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}))

	s.Start()
	time.Sleep(300 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestSchedulerSkipsOverlappingSweeps(t *testing.T) {
	s := New(context.Background())

	var runs int32
	require.NoError(t, s.Add("@every 50ms", "slow", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		time.Sleep(400 * time.Millisecond)
	}))

	s.Start()
	time.Sleep(300 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "ticks during a running sweep are skipped")
}

func TestSchedulerStopsFiringAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx)

	var runs int32
	require.NoError(t, s.Add("@every 50ms", "test", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}))

	cancel()
	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	assert.Zero(t, atomic.LoadInt32(&runs))
}
