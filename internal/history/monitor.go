package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"asistencia/internal/schedule"
)

// FetchFunc loads and decorates the attendance rows for one record ID.
type FetchFunc func(ctx context.Context, recordID int64) ([]schedule.Decorated, error)

// Monitor keeps a per-record snapshot of decorated history warm with a
// periodic background refresh. A watch starts on first Get, refreshes on
// a fixed interval, and stops itself once nobody has asked for the
// record within the idle window. Overwrites are sequential and last
// write wins; a refresh failure is logged and the loop keeps going.
type Monitor struct {
	fetch     FetchFunc
	interval  time.Duration
	idleAfter time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	watches map[int64]*watch
	closed  bool
}

type watch struct {
	cancel   context.CancelFunc
	lastSeen time.Time
	snapshot []schedule.Decorated
}

// NewMonitor builds a monitor. Interval defaults to 20s and the idle
// window to three intervals when non-positive values are passed.
func NewMonitor(fetch FetchFunc, interval, idleAfter time.Duration, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if idleAfter <= 0 {
		idleAfter = 3 * interval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		fetch:     fetch,
		interval:  interval,
		idleAfter: idleAfter,
		log:       log,
		watches:   make(map[int64]*watch),
	}
}

// Get returns the current snapshot for a record, fetching synchronously
// and starting the background watch on first sight. With force set the
// snapshot is refreshed in place before returning, regardless of the
// next scheduled tick.
func (m *Monitor) Get(ctx context.Context, recordID int64, force bool) ([]schedule.Decorated, error) {
	m.mu.Lock()
	w, ok := m.watches[recordID]
	if ok {
		w.lastSeen = time.Now()
		if !force {
			snap := w.snapshot
			m.mu.Unlock()
			return snap, nil
		}
	}
	m.mu.Unlock()

	rows, err := m.fetch(ctx, recordID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return rows, nil
	}
	w, ok = m.watches[recordID]
	if !ok {
		loopCtx, cancel := context.WithCancel(context.Background())
		w = &watch{cancel: cancel}
		m.watches[recordID] = w
		go m.loop(loopCtx, recordID)
	}
	w.lastSeen = time.Now()
	w.snapshot = rows
	return rows, nil
}

// Stop ends the watch for one record. Pending fetch results for a
// stopped watch are discarded.
func (m *Monitor) Stop(recordID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.watches[recordID]; ok {
		w.cancel()
		delete(m.watches, recordID)
	}
}

// Close stops every watch.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, w := range m.watches {
		w.cancel()
		delete(m.watches, id)
	}
}

func (m *Monitor) loop(ctx context.Context, recordID int64) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		w, ok := m.watches[recordID]
		idle := ok && time.Since(w.lastSeen) > m.idleAfter
		m.mu.Unlock()
		if !ok {
			return
		}
		if idle {
			m.Stop(recordID)
			return
		}

		fetchCtx, cancel := context.WithTimeout(ctx, m.interval)
		rows, err := m.fetch(fetchCtx, recordID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("history refresh failed",
				zap.Int64("record", recordID),
				zap.Error(err))
			continue
		}

		m.mu.Lock()
		if w, ok := m.watches[recordID]; ok {
			w.snapshot = rows
		}
		m.mu.Unlock()
	}
}
