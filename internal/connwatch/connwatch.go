// Package connwatch tracks whether the language model providers Envoy
// depends on are reachable. Results feed the /health endpoint; they
// never gate requests.
//
// Each watched provider is probed once at start, then every Interval
// while reachable. While unreachable it is re-probed with exponential
// backoff from InitialDelay up to Interval.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Options controls probe timing.
type Options struct {
	// Interval is the polling period while a provider is reachable,
	// and the backoff ceiling while it is not.
	Interval time.Duration

	// InitialDelay is the first retry delay after a failed probe.
	InitialDelay time.Duration

	// ProbeTimeout limits each probe call.
	ProbeTimeout time.Duration
}

// DefaultOptions returns the production schedule: poll each minute,
// retry failures from 2s doubling up to a minute, 10s per probe.
func DefaultOptions() Options {
	return Options{
		Interval:     60 * time.Second,
		InitialDelay: 2 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.InitialDelay > o.Interval {
		o.InitialDelay = o.Interval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	return o
}

// Status is the health of one watched provider.
type Status struct {
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

type watcher struct {
	name  string
	probe ProbeFunc

	mu     sync.Mutex
	status Status
}

func (w *watcher) snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// record stores a probe result and reports whether readiness changed.
func (w *watcher) record(err error) (changed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ready := err == nil
	changed = ready != w.status.Ready || w.status.LastCheck.IsZero()
	w.status.Ready = ready
	w.status.LastCheck = time.Now()
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	return changed
}

// Manager runs one watcher goroutine per provider.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*watcher
	wg       sync.WaitGroup
}

// NewManager creates a manager. Zero-value option fields take defaults.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "connwatch"),
		watchers: make(map[string]*watcher),
	}
}

// Watch starts probing name in the background until ctx is cancelled.
// Until the first probe completes the provider reports not ready.
// Watching the same name twice replaces nothing; the second call is
// ignored.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc) {
	m.mu.Lock()
	if _, ok := m.watchers[name]; ok {
		m.mu.Unlock()
		return
	}
	w := &watcher{name: name, probe: probe}
	m.watchers[name] = w
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, w)
	}()
}

// Wait blocks until every watcher has exited. Watchers exit once the
// context passed to Watch is cancelled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Status returns the health of every watched provider.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.snapshot()
	}
	return out
}

// Healthy reports whether every watched provider is reachable. With
// nothing watched it reports true.
func (m *Manager) Healthy() bool {
	for _, s := range m.Status() {
		if !s.Ready {
			return false
		}
	}
	return true
}

func (m *Manager) run(ctx context.Context, w *watcher) {
	log := m.logger.With("provider", w.name)
	delay := m.opts.InitialDelay

	for {
		err := m.probeOnce(ctx, w)
		if ctx.Err() != nil {
			return
		}

		changed := w.record(err)
		wait := m.opts.Interval
		switch {
		case err == nil && changed:
			log.Info("provider reachable")
			delay = m.opts.InitialDelay
		case err == nil:
			delay = m.opts.InitialDelay
		case changed:
			log.Warn("provider unreachable", "error", err, "retry_in", delay)
			wait = delay
			delay = min(delay*2, m.opts.Interval)
		default:
			log.Debug("provider still unreachable", "error", err, "retry_in", delay)
			wait = delay
			delay = min(delay*2, m.opts.Interval)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) probeOnce(ctx context.Context, w *watcher) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	return w.probe(probeCtx)
}
