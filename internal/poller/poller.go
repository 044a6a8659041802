// Package poller maintains the shared reachability probe cycle. One
// timer and one probe cadence exist regardless of how many observers
// hold a registration; the timer runs iff the registration set is
// non-empty.
package poller

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"netwatch/internal/config"
)

// ProbeFunc performs one reachability check. A nil error means the
// endpoint answered; any error counts as unreachable.
type ProbeFunc func(ctx context.Context) error

// Poller owns the shared timer, the latest probe result, and the
// registration set. The result starts optimistically reachable on every
// fresh start and is discarded on teardown.
type Poller struct {
	settings *config.Settings
	logger   *zap.Logger
	clk      clock.Clock
	probe    ProbeFunc
	client   *http.Client

	mu        sync.Mutex
	regs      map[uuid.UUID]struct{}
	subs      map[int]func(bool)
	nextSub   int
	reachable bool
	gen       uint64
	stopCh    chan struct{}
	ticker    *clock.Ticker
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock substitutes the timer source, used by tests.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clk = c }
}

// WithProbe replaces the HTTP probe with a custom check.
func WithProbe(fn ProbeFunc) Option {
	return func(p *Poller) { p.probe = fn }
}

// New creates an idle poller; no timer runs until the first Register.
func New(settings *config.Settings, logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		settings: settings,
		logger:   logger.Named("poller"),
		clk:      clock.New(),
		client:   &http.Client{},
		regs:     make(map[uuid.UUID]struct{}),
		subs:     make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.probe == nil {
		p.probe = p.httpProbe
	}
	return p
}

// Register adds an observer to the polling cycle and returns its token.
// The first registration starts the shared timer at the interval
// configured at that moment, with the result reset to reachable. Later
// registrations join the existing cadence; no immediate probe is forced.
func (p *Poller) Register() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := uuid.New()
	p.regs[token] = struct{}{}
	if len(p.regs) == 1 {
		p.startLocked()
	}
	return token
}

// Unregister removes a registration. When the set becomes empty the
// timer is cancelled and all probe state is discarded; the next Register
// starts completely fresh. Unknown tokens are ignored.
func (p *Poller) Unregister(token uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.regs[token]; !ok {
		return
	}
	delete(p.regs, token)
	if len(p.regs) == 0 {
		p.stopLocked()
	}
}

// Active reports whether the shared timer is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh != nil
}

// Snapshot returns the current reachability verdict. With no timer
// active polling is not applicable and the verdict is optimistically
// true.
func (p *Poller) Snapshot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return true
	}
	return p.reachable
}

// Subscribe registers a callback invoked once per reachability flip.
// Identical consecutive probe outcomes never notify.
func (p *Poller) Subscribe(cb func(reachable bool)) (cancel func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Poller) startLocked() {
	p.gen++
	p.reachable = true
	p.stopCh = make(chan struct{})
	interval := p.settings.Interval()
	// The ticker is created here, not in the goroutine, so the cadence
	// is pinned before Register returns.
	p.ticker = p.clk.Ticker(interval)
	p.logger.Debug("polling started", zap.Duration("interval", interval))
	go p.run(p.gen, p.ticker, p.stopCh)
}

func (p *Poller) stopLocked() {
	p.gen++
	p.ticker.Stop()
	p.ticker = nil
	close(p.stopCh)
	p.stopCh = nil
	p.reachable = true
	p.logger.Debug("polling stopped")
}

func (p *Poller) run(gen uint64, ticker *clock.Ticker, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			// Ticks are not serialized: a slow probe must not stall the
			// cadence, and whichever completion lands last wins.
			go p.tick(gen)
		}
	}
}

func (p *Poller) tick(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), p.settings.ProbeTimeout())
	defer cancel()
	err := p.probe(ctx)
	p.apply(gen, err == nil)
	if err != nil {
		p.logger.Debug("probe failed", zap.Error(err))
	}
}

// apply folds one probe completion into shared state. Completions from
// a torn-down or restarted cycle carry a stale generation and are
// dropped without touching anything.
func (p *Poller) apply(gen uint64, reachable bool) {
	p.mu.Lock()
	if gen != p.gen || reachable == p.reachable {
		p.mu.Unlock()
		return
	}
	p.reachable = reachable
	cbs := make([]func(bool), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()

	p.logger.Debug("reachability changed", zap.Bool("reachable", reachable))
	for _, cb := range cbs {
		cb(reachable)
	}
}

// httpProbe issues one GET to the configured endpoint with caching
// disabled. Any completed exchange counts as reachable regardless of
// status code; only transport-level failure counts against us.
func (p *Poller) httpProbe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.settings.Endpoint(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return nil
}
