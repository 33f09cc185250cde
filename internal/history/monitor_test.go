package history

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"asistencia/internal/schedule"
)

func TestMonitorFirstGetFetchesAndStartsWatch(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		calls.Add(1)
		return []schedule.Decorated{rec("2025-05-03", "08:08:14")}, nil
	}
	m := NewMonitor(fetch, time.Hour, time.Hour, nil)
	defer m.Close()

	rows, err := m.Get(context.Background(), 42, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, calls.Load())

	// Second get serves the snapshot without refetching.
	rows, err = m.Get(context.Background(), 42, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, calls.Load())
}

func TestMonitorForceRefreshOverwrites(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		n := calls.Add(1)
		out := make([]schedule.Decorated, n)
		return out, nil
	}
	m := NewMonitor(fetch, time.Hour, time.Hour, nil)
	defer m.Close()

	rows, err := m.Get(context.Background(), 7, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = m.Get(context.Background(), 7, true)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestMonitorBackgroundRefreshLastWriteWins(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		n := calls.Add(1)
		return make([]schedule.Decorated, n), nil
	}
	m := NewMonitor(fetch, 10*time.Millisecond, time.Hour, nil)
	defer m.Close()

	_, err := m.Get(context.Background(), 7, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rows, err := m.Get(context.Background(), 7, false)
		return err == nil && len(rows) > 1
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorSurvivesRefreshErrors(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		n := calls.Add(1)
		if n > 1 && n < 4 {
			return nil, errors.New("upstream down")
		}
		return make([]schedule.Decorated, n), nil
	}
	m := NewMonitor(fetch, 10*time.Millisecond, time.Hour, nil)
	defer m.Close()

	_, err := m.Get(context.Background(), 7, false)
	require.NoError(t, err)

	// The loop keeps refreshing after transient failures.
	require.Eventually(t, func() bool {
		return calls.Load() >= 4
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorStopEndsWatch(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		calls.Add(1)
		return nil, nil
	}
	m := NewMonitor(fetch, 10*time.Millisecond, time.Hour, nil)
	defer m.Close()

	_, err := m.Get(context.Background(), 7, false)
	require.NoError(t, err)
	m.Stop(7)

	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, calls.Load(), settled+1)
}

func TestMonitorIdleWatchStopsItself(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context, recordID int64) ([]schedule.Decorated, error) {
		calls.Add(1)
		return nil, nil
	}
	m := NewMonitor(fetch, 5*time.Millisecond, 10*time.Millisecond, nil)
	defer m.Close()

	_, err := m.Get(context.Background(), 7, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.watches) == 0
	}, time.Second, 5*time.Millisecond)
}
