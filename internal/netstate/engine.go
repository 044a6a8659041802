// Package netstate composes the link-layer hint and the shared
// reachability poller into one "is this host online" boolean.
package netstate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"netwatch/internal/config"
	"netwatch/internal/linkstate"
	"netwatch/internal/models"
	"netwatch/internal/poller"
)

// Event names a connectivity transition. Link events forward the
// platform hint; polled events fire only when the probe result flips.
type Event string

const (
	EventLinkOnline    Event = "link-online"
	EventLinkOffline   Event = "link-offline"
	EventPolledOnline  Event = "polled-online"
	EventPolledOffline Event = "polled-offline"
)

// Engine owns the runtime settings, the link monitor, and the shared
// poller. The composite boolean is never stored; it is recomputed from
// the two snapshots on demand.
type Engine struct {
	settings *config.Settings
	logger   *zap.Logger
	link     *linkstate.Monitor
	poller   *poller.Poller
	level    *zap.AtomicLevel
}

// Option configures an Engine.
type Option func(*Engine)

// WithLinkMonitor substitutes the link monitor, used by tests.
func WithLinkMonitor(m *linkstate.Monitor) Option {
	return func(e *Engine) { e.link = m }
}

// WithPoller substitutes the reachability poller, used by tests.
func WithPoller(p *poller.Poller) Option {
	return func(e *Engine) { e.poller = p }
}

// WithLevel lets SetDebugLogging drive the process log level.
func WithLevel(level *zap.AtomicLevel) Option {
	return func(e *Engine) { e.level = level }
}

// New builds an engine over the given settings.
func New(settings *config.Settings, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		settings: settings,
		logger:   logger.Named("netstate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.link == nil {
		e.link = linkstate.NewMonitor(nil, logger)
	}
	if e.poller == nil {
		e.poller = poller.New(settings, logger)
	}
	return e
}

// IsOnline returns the composite connectivity boolean: the link hint
// ANDed with the probe verdict when polling is consulted. Observers who
// opt out of polling get the bare link hint at zero polling cost.
func (e *Engine) IsOnline(pollingEnabled bool) bool {
	return e.link.Snapshot() && (!pollingEnabled || e.poller.Snapshot())
}

// Snapshot reports the full engine state for the HTTP surface.
func (e *Engine) Snapshot() models.StateSnapshot {
	link := e.link.Snapshot()
	reachable := e.poller.Snapshot()
	return models.StateSnapshot{
		Online:        link && reachable,
		Link:          link,
		Reachable:     reachable,
		PollingActive: e.poller.Active(),
		IntervalMS:    e.settings.Interval().Milliseconds(),
		Endpoint:      e.settings.Endpoint(),
		GeneratedAt:   time.Now().UTC(),
	}
}

// Subscription ties one observer to the engine. Closing it releases the
// link subscription and, when polling was enabled, the poller
// registration. Close is idempotent.
type Subscription struct {
	engine     *Engine
	token      uuid.UUID
	hasToken   bool
	cancelLink func()
	cancelPoll func()
	once       sync.Once
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancelLink()
		if s.cancelPoll != nil {
			s.cancelPoll()
		}
		if s.hasToken {
			s.engine.poller.Unregister(s.token)
		}
	})
}

// Subscribe registers an observer. The callback receives the named
// transition event plus the recomputed composite boolean. With
// pollingEnabled false the poller is never registered or consulted for
// this observer.
func (e *Engine) Subscribe(pollingEnabled bool, fn func(Event, bool)) *Subscription {
	s := &Subscription{engine: e}
	s.cancelLink = e.link.Subscribe(func(up bool) {
		ev := EventLinkOffline
		if up {
			ev = EventLinkOnline
		}
		fn(ev, e.IsOnline(pollingEnabled))
	})
	if pollingEnabled {
		s.token = e.poller.Register()
		s.hasToken = true
		s.cancelPoll = e.poller.Subscribe(func(reachable bool) {
			ev := EventPolledOffline
			if reachable {
				ev = EventPolledOnline
			}
			fn(ev, e.IsOnline(true))
		})
	}
	return s
}

// SetProbeInterval validates and stores a new probe interval. A live
// poll cycle keeps its cadence; the new value is only read at the next
// empty-to-non-empty start, and a warning records the deferral.
func (e *Engine) SetProbeInterval(d time.Duration) error {
	if err := e.settings.SetInterval(d); err != nil {
		return err
	}
	if e.poller.Active() {
		e.logger.Warn("probe interval change deferred until polling restarts",
			zap.Duration("interval", d))
	}
	return nil
}

// SetProbeEndpoint replaces the probe URL; in-flight probes finish
// against the old one.
func (e *Engine) SetProbeEndpoint(url string) {
	e.settings.SetEndpoint(url)
}

// SetDebugLogging toggles verbose logging, flipping the process log
// level when one was wired in.
func (e *Engine) SetDebugLogging(enabled bool) {
	e.settings.SetDebugLogging(enabled)
	if e.level == nil {
		return
	}
	if enabled {
		e.level.SetLevel(zapcore.DebugLevel)
	} else {
		e.level.SetLevel(zapcore.InfoLevel)
	}
}
