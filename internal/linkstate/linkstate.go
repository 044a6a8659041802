package linkstate

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Source delivers the platform's low-level link verdict. A verdict of
// true means the host has a plausibly working network path; it does not
// guarantee internet reachability.
type Source interface {
	// Watch sends a verdict on updates whenever the platform state may
	// have changed, until ctx is cancelled. It closes updates on return.
	// Consecutive identical verdicts are allowed; the monitor dedupes.
	Watch(ctx context.Context, updates chan<- bool)

	// Evaluate recomputes the verdict immediately.
	Evaluate() bool
}

// Monitor fans the platform link hint out to subscribers. The platform
// source is attached when the first subscriber appears and detached when
// the last one leaves.
type Monitor struct {
	logger *zap.Logger
	source Source

	mu      sync.Mutex
	subs    map[int]func(bool)
	nextID  int
	up      bool
	cancel  context.CancelFunc
	updates chan bool
}

// NewMonitor creates a monitor over the given source. A nil source
// selects the platform implementation for this build.
func NewMonitor(source Source, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == nil {
		source = newPlatformSource(logger)
	}
	return &Monitor{
		logger: logger.Named("linkstate"),
		source: source,
		subs:   make(map[int]func(bool)),
	}
}

// Snapshot returns the current link verdict. While the source is
// attached the cached value is returned; otherwise the source is
// evaluated directly.
func (m *Monitor) Snapshot() bool {
	m.mu.Lock()
	if m.cancel != nil {
		up := m.up
		m.mu.Unlock()
		return up
	}
	m.mu.Unlock()
	return m.source.Evaluate()
}

// Subscribe registers a callback invoked once per link verdict flip.
// The returned function cancels the subscription; cancelling the last
// one detaches the platform source.
func (m *Monitor) Subscribe(cb func(up bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = cb
	if len(m.subs) == 1 {
		m.attachLocked()
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			if len(m.subs) == 0 {
				m.detachLocked()
			}
		}
		m.mu.Unlock()
	}
}

func (m *Monitor) attachLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.up = m.source.Evaluate()
	m.logger.Debug("link source attached", zap.Bool("up", m.up))

	updates := make(chan bool, 8)
	m.updates = updates
	go m.source.Watch(ctx, updates)
	go m.forward(updates)
}

func (m *Monitor) detachLocked() {
	m.cancel()
	m.cancel = nil
	m.updates = nil
	m.logger.Debug("link source detached")
}

func (m *Monitor) forward(updates chan bool) {
	for up := range updates {
		m.mu.Lock()
		// A detach (or detach/re-attach) may race a buffered update;
		// only the live channel's forwarder may touch state.
		if m.updates != updates || up == m.up {
			m.mu.Unlock()
			continue
		}
		m.up = up
		cbs := make([]func(bool), 0, len(m.subs))
		for _, cb := range m.subs {
			cbs = append(cbs, cb)
		}
		m.mu.Unlock()

		m.logger.Debug("link verdict changed", zap.Bool("up", up))
		for _, cb := range cbs {
			cb(up)
		}
	}
}
