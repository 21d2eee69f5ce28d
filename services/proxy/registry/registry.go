// Package registry maps report names to their current session, and owns
// the process-lifetime decisions that depend on registry occupancy: first
// registration triggers a deduplicated browser launch, and an empty
// registry triggers supervisor shutdown.
package registry

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/services/proxy/observability"
	"github.com/deltaproxy/deltaproxy/services/proxy/session"
)

// BrowserLauncher opens a browser (or no-ops, e.g. in a headless test)
// pointed at the given report name. Injected so tests never shell out.
type BrowserLauncher func(reportName string)

// Registry maps report names to their current Session and arbitrates
// registration, deregistration, and the startup-timeout grace period for
// sessions no consumer has attached to yet.
//
// # Description
//
// Registry implements the name -> current-session mapping described in
// the proxy's core design: Register installs a session under a name,
// replacing whatever was there (a rotation); Deregister removes it;
// IsCurrent distinguishes a stale session handle (e.g. from a connection
// that outlived a rotation) from the live one; Lookup is the read path
// used by the consumer endpoint.
//
// # Thread Safety
//
// Guarded by a sync.RWMutex; Register/Deregister take the write lock,
// Lookup/IsCurrent take the read lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	timers   map[string]*time.Timer

	startupTimeout time.Duration
	onEmpty        func()
	launchBrowser  BrowserLauncher
	launchOnce     singleflight.Group

	log     *logging.Logger
	metrics *observability.ProxyMetrics
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithStartupTimeout sets how long a session may go without any consumer
// attaching before it is torn down by event T. The zero value disables
// the timeout (such sessions live until explicitly deregistered).
func WithStartupTimeout(d time.Duration) Option {
	return func(r *Registry) { r.startupTimeout = d }
}

// WithOnEmpty registers a callback invoked whenever Deregister leaves the
// registry empty — the hook the supervisor uses to potentially stop.
func WithOnEmpty(f func()) Option {
	return func(r *Registry) { r.onEmpty = f }
}

// WithBrowserLauncher overrides the browser-launch side effect fired when
// a name with no current session is registered. Defaults to a no-op.
func WithBrowserLauncher(f BrowserLauncher) Option {
	return func(r *Registry) { r.launchBrowser = f }
}

// WithLogger overrides the structured logger used for registry events.
// Defaults to logging.Default().
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithMetrics overrides the metrics sink. Defaults to
// observability.DefaultMetrics, which may be nil if InitMetrics was never
// called; a nil sink is tolerated (metric calls become no-ops).
func WithMetrics(m *observability.ProxyMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions:      make(map[string]*session.Session),
		timers:        make(map[string]*time.Timer),
		launchBrowser: func(string) {},
		log:           logging.Default(),
		metrics:       observability.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs sess as the current session for name, replacing any
// prior session under that name (a producer rotation, event LC+). If name
// has no current session (its first registration, or one after it was
// deregistered), it fires a deduplicated browser launch and returns true;
// otherwise it returns false.
func (r *Registry) Register(name string, sess *session.Session) (firstEver bool) {
	r.mu.Lock()
	_, existed := r.sessions[name]
	r.sessions[name] = sess
	r.cancelTimerLocked(name)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(r.Len()))
		r.metrics.RecordTransition(observability.EventProducerJoin)
	}
	r.log.WithReport(name, sess.ReportID()).Info("session registered", "first_ever", !existed)

	if !existed {
		r.launchOnce.Do(name, func() (any, error) {
			r.launchBrowser(name)
			return nil, nil
		})
		return true
	}
	return false
}

// Deregister removes name's current session if and only if sess is still
// the one registered under it (a stale handle from a rotated-away
// producer or departed consumer is a silent no-op). If the registry
// becomes empty as a result, the onEmpty hook fires.
func (r *Registry) Deregister(name string, sess *session.Session) {
	r.mu.Lock()
	current, ok := r.sessions[name]
	if !ok || current != sess {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, name)
	r.cancelTimerLocked(name)
	empty := len(r.sessions) == 0
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(r.Len()))
	}
	r.log.WithReport(name, current.ReportID()).Info("session deregistered")

	if empty && r.onEmpty != nil {
		r.onEmpty()
	}
}

// Lookup returns the current session registered under name, if any.
func (r *Registry) Lookup(name string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[name]
	return sess, ok
}

// IsCurrent reports whether sess is still the session registered under
// name, i.e. whether a handle has been superseded by a rotation. (The
// consumer stream loop detects rotation by comparing Lookup's result.)
func (r *Registry) IsCurrent(name string, sess *session.Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.sessions[name]
	return ok && current == sess
}

// Len reports the number of names currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ArmTimeout starts (or restarts) the startup-timeout timer for name: if
// the timer fires before Register or a consumer attach cancels it, the
// session is torn down (event T) via Deregister and a
// TeardownTimeout metric is recorded. No-op if WithStartupTimeout was
// never set to a positive duration.
func (r *Registry) ArmTimeout(name string, sess *session.Session) {
	if r.startupTimeout <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked(name)
	r.timers[name] = time.AfterFunc(r.startupTimeout, func() {
		if !sess.ShouldDropAfterTimeout() {
			return
		}
		r.log.WithReport(name, sess.ReportID()).Warn("session startup timeout")
		if r.metrics != nil {
			r.metrics.RecordTransition(observability.EventTimeout)
			r.metrics.RecordTeardown(observability.TeardownTimeout)
		}
		r.Deregister(name, sess)
	})
}

// CancelTimeout cancels name's pending startup-timeout timer, if any.
func (r *Registry) CancelTimeout(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked(name)
}

func (r *Registry) cancelTimerLocked(name string) {
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}
