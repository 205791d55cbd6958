// Package throttle implements the rate-limited HTTP transport shared by all
// web API calls. Admission is a sliding request-count window: a request is
// forwarded only once fewer than MaxRequests requests have been admitted in
// the trailing Period. The underlying http.Client is shared between call
// sites through reference-counted handles and torn down on last release.
package throttle

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tradeline/degiro-go/pkg/logging"
)

// Prometheus metrics for transport admission control.
var (
	admittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_throttle_admitted_total",
		Help: "Total requests admitted through the sliding window",
	})

	waitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_throttle_waits_total",
		Help: "Total admission waits caused by a full window",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "degiro_throttle_wait_seconds",
		Help:    "Duration of admission waits",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// ErrReleased is returned when a request is attempted on a released handle.
var ErrReleased = errors.New("transport handle already released")

// Config holds the transport configuration.
type Config struct {
	// MaxRequests is the number of requests admitted per Period.
	// A value <= 0 disables throttling entirely.
	MaxRequests int

	// Period is the length of the sliding window.
	Period time.Duration

	// HTTPTimeout bounds each forwarded HTTP request.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 10,
		Period:      1 * time.Second,
		HTTPTimeout: 30 * time.Second,
	}
}

// Transport is a rate-limited wrapper around a shared http.Client.
//
// The client is constructed lazily on the first Acquire and closed when the
// last handle is released. The admission window is per-transport state; all
// handles of one transport share the same request budget.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	window    []time.Time
	client    *http.Client
	openCount int
}

// New creates a new rate-limited transport.
func New(cfg Config) *Transport {
	if cfg.Period <= 0 {
		cfg.Period = 1 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Transport{
		cfg:    cfg,
		logger: logging.NewLogger("throttle"),
		now:    time.Now,
	}
}

// Handle is a scoped reference to the shared transport. Every Acquire must be
// paired with exactly one Release; Release is idempotent per handle.
type Handle struct {
	tr *Transport

	mu       sync.Mutex
	released bool
}

// Acquire opens a scoped handle on the transport, lazily constructing the
// underlying HTTP client on the first open.
func (t *Transport) Acquire() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openCount++
	if t.client == nil {
		t.client = &http.Client{Timeout: t.cfg.HTTPTimeout}
		t.logger.Debug().Msg("Underlying HTTP client constructed")
	}
	return &Handle{tr: t}
}

// Release closes the handle. When the last open handle is released, the
// underlying client is torn down and its idle connections closed.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	t := h.tr
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openCount--
	if t.openCount <= 0 {
		t.openCount = 0
		if t.client != nil {
			t.client.CloseIdleConnections()
			t.client = nil
			t.logger.Debug().Msg("Underlying HTTP client torn down")
		}
	}
}

// Do forwards the request through admission control.
//
// Admission itself never fails; the only error paths are a cancelled context
// during a wait, a released handle, and the forwarded HTTP call.
func (h *Handle) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	t := h.tr
	if err := t.admit(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil, ErrReleased
	}

	return client.Do(req.WithContext(ctx))
}

// admit blocks until the sliding window has room, then claims a slot.
// After every wait the window is re-checked: another waiter may have
// re-filled it in the meantime.
func (t *Transport) admit(ctx context.Context) error {
	if t.cfg.MaxRequests <= 0 {
		return nil
	}

	for {
		t.mu.Lock()
		now := t.now()
		t.prune(now)

		if len(t.window) < t.cfg.MaxRequests {
			t.window = append(t.window, now)
			t.mu.Unlock()
			admittedTotal.Inc()
			return nil
		}

		// Window full: wait until the oldest retained timestamp slides out.
		wait := t.window[0].Add(t.cfg.Period).Sub(now)
		occupancy := len(t.window)
		t.mu.Unlock()

		if wait <= 0 {
			continue
		}

		waitsTotal.Inc()
		waitSeconds.Observe(wait.Seconds())
		t.logger.Debug().
			Int("window", occupancy).
			Dur("wait", wait).
			Msg("Throttling request")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// prune drops window entries older than the configured period.
// Caller must hold t.mu.
func (t *Transport) prune(now time.Time) {
	cutoff := now.Add(-t.cfg.Period)
	i := 0
	for i < len(t.window) && !t.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append(t.window[:0], t.window[i:]...)
	}
}
