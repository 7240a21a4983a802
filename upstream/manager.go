package upstream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/respondio-mcp/internal/metrics"
)

// Defaults for the manager's health policy.
const (
	DefaultHealthCheckInterval = 10 * time.Minute
	DefaultStaleAfter          = 5 * time.Minute
	DefaultMaxErrors           = 5
	DefaultProbeTimeout        = 10 * time.Second
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger. Defaults to slog.Default().
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMetrics records cache size, probes and recreations.
func WithMetrics(mx *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mx }
}

// WithClientOptions sets the options merged into every client the manager builds.
func WithClientOptions(opts ...ClientOption) ManagerOption {
	return func(m *Manager) { m.clientOpts = append(m.clientOpts, opts...) }
}

// WithHealthCheckInterval sets how often cached clients are probed.
func WithHealthCheckInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// WithStaleAfter sets how old an unhealthy entry's last check may be before
// it is rebuilt on access.
func WithStaleAfter(d time.Duration) ManagerOption {
	return func(m *Manager) { m.staleAfter = d }
}

// WithMaxErrors sets the error count above which an unhealthy entry is rebuilt.
func WithMaxErrors(n int) ManagerOption {
	return func(m *Manager) { m.maxErrors = n }
}

// WithProbeTimeout bounds a single health probe.
func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.probeTimeout = d }
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// EntryStats is a point-in-time view of one cached client.
type EntryStats struct {
	Key          string
	Endpoint     string
	Fingerprint  string
	Healthy      bool
	ErrorCount   int
	LastChecked  time.Time
	ResponseTime time.Duration
}

type entry struct {
	key         string
	endpoint    string
	fingerprint string
	client      *Client

	healthy      bool
	lastChecked  time.Time
	errorCount   int
	responseTime time.Duration
	probing      bool
}

// Manager caches upstream clients by (endpoint, credential) and keeps their
// health metadata current. All methods are safe for concurrent use.
type Manager struct {
	log          *slog.Logger
	metrics      *metrics.Metrics
	clientOpts   []ClientOption
	interval     time.Duration
	staleAfter   time.Duration
	maxErrors    int
	probeTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	probes    sync.WaitGroup
}

// NewManager constructs a Manager. The health loop starts on the first
// GetClient call and runs until Stop.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		log:          slog.Default(),
		interval:     DefaultHealthCheckInterval,
		staleAfter:   DefaultStaleAfter,
		maxErrors:    DefaultMaxErrors,
		probeTimeout: DefaultProbeTimeout,
		now:          time.Now,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.New(nil)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// GetClient returns the cached client for (endpoint, credential), building
// one when none exists or when the existing one is due for recreation. It
// performs no network I/O.
func (m *Manager) GetClient(endpoint, credential string) (*Client, error) {
	m.startOnce.Do(func() { go m.healthLoop() })

	key := cacheKey(endpoint, credential)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		if !m.needsRecreate(e) {
			return e.client, nil
		}
		m.log.Info("upstream.client.recreate",
			slog.String("key", key),
			slog.String("credential", e.fingerprint),
			slog.Int("error_count", e.errorCount),
			slog.Time("last_checked", e.lastChecked),
		)
		delete(m.entries, key)
		m.metrics.UpstreamRecreations.Inc()
	}

	e := &entry{
		key:         key,
		fingerprint: Fingerprint(credential),
		healthy:     true,
		lastChecked: m.now(),
	}
	opts := append([]ClientOption{WithClientLogger(m.log)}, m.clientOpts...)
	opts = append(opts, withFailureHook(func(err error) {
		m.log.Warn("upstream.call.fail", slog.String("key", key), slog.String("credential", e.fingerprint), slog.String("err", err.Error()))
		m.recordFailure(e)
	}))
	client, err := NewClient(endpoint, credential, opts...)
	if err != nil {
		return nil, err
	}
	e.client = client
	e.endpoint = client.Endpoint()

	m.entries[key] = e
	m.metrics.UpstreamClients.Set(float64(len(m.entries)))
	m.log.Debug("upstream.client.create", slog.String("key", key), slog.String("credential", e.fingerprint))
	return client, nil
}

// needsRecreate must be called with m.mu held.
func (m *Manager) needsRecreate(e *entry) bool {
	if e.healthy {
		return false
	}
	return e.errorCount > m.maxErrors || m.now().Sub(e.lastChecked) > m.staleAfter
}

// MarkUnhealthy records a failure against the entry for (endpoint, credential).
// It is a no-op when no such entry exists.
func (m *Manager) MarkUnhealthy(endpoint, credential string) {
	m.markUnhealthy(cacheKey(endpoint, credential))
}

func (m *Manager) markUnhealthy(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.failLocked(e)
	}
}

// recordFailure counts a failed call against e while e is still the cached
// entry for its key. Failures of a replaced client are dropped.
func (m *Manager) recordFailure(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[e.key] == e {
		m.failLocked(e)
	}
}

// failLocked must be called with m.mu held.
func (m *Manager) failLocked(e *entry) {
	e.healthy = false
	e.errorCount++
	e.lastChecked = m.now()
}

// Stats returns a snapshot of every cached entry.
func (m *Manager) Stats() []EntryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EntryStats, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, EntryStats{
			Key:          e.key,
			Endpoint:     e.endpoint,
			Fingerprint:  e.fingerprint,
			Healthy:      e.healthy,
			ErrorCount:   e.errorCount,
			LastChecked:  e.lastChecked,
			ResponseTime: e.responseTime,
		})
	}
	return out
}

// Len returns the number of cached clients.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stop cancels the health loop and any in-flight probes. It does not wait for
// them to return. Stop is idempotent.
func (m *Manager) Stop() {
	m.cancel()
}

func (m *Manager) healthLoop() {
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeAll()
			m.logStats()
		}
	}
}

// probeAll launches one probe per cached entry that is not already being
// probed. Each probe runs on its own goroutine under its own timeout.
func (m *Manager) probeAll() {
	m.mu.Lock()
	targets := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.probing {
			continue
		}
		e.probing = true
		targets = append(targets, e)
	}
	m.mu.Unlock()

	for _, e := range targets {
		m.probes.Add(1)
		go m.probe(e)
	}
}

func (m *Manager) probe(e *entry) {
	defer m.probes.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	err := e.client.Probe(ctx)
	elapsed := time.Since(start)

	m.mu.Lock()
	e.probing = false
	e.lastChecked = m.now()
	e.responseTime = elapsed
	if err == nil {
		e.healthy = true
		e.errorCount = 0
	} else {
		e.healthy = false
		e.errorCount++
	}
	errorCount := e.errorCount
	m.mu.Unlock()

	if err != nil {
		m.metrics.UpstreamProbes.WithLabelValues("error").Inc()
		if m.ctx.Err() == nil {
			m.log.Warn("upstream.probe.fail",
				slog.String("key", e.key),
				slog.String("credential", e.fingerprint),
				slog.Int("error_count", errorCount),
				slog.String("err", err.Error()),
			)
		}
		return
	}
	m.metrics.UpstreamProbes.WithLabelValues("ok").Inc()
	m.log.Debug("upstream.probe.ok", slog.String("key", e.key), slog.Duration("dur", elapsed))
}

func (m *Manager) logStats() {
	stats := m.Stats()
	healthy := 0
	for _, s := range stats {
		if s.Healthy {
			healthy++
		}
	}
	m.log.Info("upstream.stats", slog.Int("clients", len(stats)), slog.Int("healthy", healthy))
}
