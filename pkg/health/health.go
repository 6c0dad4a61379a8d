// Package health serves the /livez and /readyz probes of the API server.
//
// Every check runs in its own goroutine on a fixed interval. A check turns
// unhealthy after FailureThreshold consecutive failures and healthy again
// after SuccessThreshold consecutive passes, so a single slow query against
// Postgres or Redis does not flap readiness.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind tells liveness checks from readiness checks.
type Kind string

const (
	Liveness  Kind = "liveness"
	Readiness Kind = "readiness"
)

// Option configures Health.
type Option func(*Health)

// WithLogger logs every transition between healthy and unhealthy.
func WithLogger(lg *zap.Logger) Option {
	return func(h *Health) { h.lg = lg }
}

// WithThresholds overrides the default 3 failures / 1 success thresholds.
func WithThresholds(failure, success int) Option {
	return func(h *Health) {
		h.failureThreshold = max(1, failure)
		h.successThreshold = max(1, success)
	}
}

// check is a registered CheckFunc with its state. run is only called from
// one goroutine; healthy and lastErr are read concurrently by handlers.
type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc
	lg      *zap.Logger

	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails  int
	passes int
}

func (c *check) isHealthy() bool { return c.healthy.Load() }

func (c *check) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.passes = 0
		c.fails++
		if c.fails >= c.failureThreshold && c.healthy.Swap(false) {
			c.lg.Warn("Health check failing",
				zap.String("check", c.name),
				zap.String("kind", string(c.kind)),
				zap.Error(err),
			)
		}
		return
	}
	c.fails = 0
	c.passes++
	if c.passes >= c.successThreshold && !c.healthy.Swap(true) {
		c.lg.Info("Health check recovered",
			zap.String("check", c.name),
			zap.String("kind", string(c.kind)),
		)
	}
}

// Health holds the registered checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool
	lg    *zap.Logger

	failureThreshold int
	successThreshold int

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates Health in the not ready state. Call SetReady(true) once
// the server is listening.
func New(opts ...Option) *Health {
	h := &Health{
		lg:               zap.NewNop(),
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Health) add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &check{
		name:             name,
		kind:             kind,
		timeout:          timeout,
		fn:               fn,
		lg:               h.lg,
		failureThreshold: h.failureThreshold,
		successThreshold: h.successThreshold,
	}
	c.healthy.Store(true)
	h.checks = append(h.checks, c)
}

// AddLivenessCheck registers a check whose failure means the process should
// be restarted, e.g. a goroutine leak.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(Liveness, name, timeout, fn)
}

// AddReadinessCheck registers a check whose failure means the process should
// stop receiving traffic, e.g. Postgres or Redis being unreachable.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(Readiness, name, timeout, fn)
}

// Start runs every registered check immediately and then on each interval
// until Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}()
	}
}

// Stop cancels the check goroutines. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag. The server sets it to false at
// the start of graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the flag is set and every readiness check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) snapshot(kind Kind) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*check
	for _, c := range h.checks {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// failures maps each unhealthy check of kind to its last error.
func (h *Health) failures(kind Kind) map[string]string {
	failures := make(map[string]string)
	for _, c := range h.snapshot(kind) {
		if c.isHealthy() {
			continue
		}
		if err := c.getLastError(); err != nil {
			failures[c.name] = err.Error()
		} else {
			failures[c.name] = "check is unhealthy"
		}
	}
	return failures
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// writeResponse writes {"status":"ok"} with 200, or
// {"status":"unhealthy","checks":{...}} with 503.
func writeResponse(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(failures))
				for name := range failures {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
