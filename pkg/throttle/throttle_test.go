package throttle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*httptest.Server, func() []time.Time) {
	t.Helper()

	var mu sync.Mutex
	var hits []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []time.Time {
		mu.Lock()
		defer mu.Unlock()
		out := make([]time.Time, len(hits))
		copy(out, hits)
		return out
	}
}

func TestDo_SlidingWindowInvariant(t *testing.T) {
	const (
		maxRequests = 3
		period      = 200 * time.Millisecond
		totalCalls  = 9
	)

	server, hitTimes := newTestServer(t)

	tr := New(Config{MaxRequests: maxRequests, Period: period})
	h := tr.Acquire()
	defer h.Release()

	var wg sync.WaitGroup
	for i := 0; i < totalCalls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			if err != nil {
				t.Error(err)
				return
			}
			resp, err := h.Do(context.Background(), req)
			if err != nil {
				t.Errorf("Do() error: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	hits := hitTimes()
	if len(hits) != totalCalls {
		t.Fatalf("server saw %d requests, want %d", len(hits), totalCalls)
	}

	// No sliding window of length `period` may contain more than maxRequests
	// admissions. A small tolerance absorbs localhost transit time between
	// admission and server receipt.
	sort.Slice(hits, func(i, j int) bool { return hits[i].Before(hits[j]) })
	tolerance := 20 * time.Millisecond
	for i := range hits {
		count := 0
		for j := i; j < len(hits); j++ {
			if hits[j].Sub(hits[i]) < period-tolerance {
				count++
			}
		}
		if count > maxRequests {
			t.Fatalf("window starting at hit %d contains %d requests, want <= %d", i, count, maxRequests)
		}
	}
}

func TestDo_PassThroughWhenDisabled(t *testing.T) {
	server, hitTimes := newTestServer(t)

	tr := New(Config{MaxRequests: 0, Period: time.Second})
	h := tr.Acquire()
	defer h.Release()

	start := time.Now()
	for i := 0; i < 20; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := h.Do(context.Background(), req)
		if err != nil {
			t.Fatalf("Do() error: %v", err)
		}
		resp.Body.Close()
	}

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("20 pass-through requests took %v, expected no throttling", elapsed)
	}
	if got := len(hitTimes()); got != 20 {
		t.Errorf("server saw %d requests, want 20", got)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	server, _ := newTestServer(t)

	tr := New(Config{MaxRequests: 1, Period: 5 * time.Second})
	h := tr.Acquire()
	defer h.Release()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := h.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("first Do() error: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req2, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	start := time.Now()
	_, err = h.Do(ctx, req2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled Do() returned after %v, expected prompt return", elapsed)
	}
}

func TestAcquireRelease_RefCountedLifecycle(t *testing.T) {
	tr := New(DefaultConfig())

	if tr.client != nil {
		t.Fatal("client constructed before first Acquire")
	}

	h1 := tr.Acquire()
	if tr.client == nil {
		t.Fatal("client not constructed on first Acquire")
	}

	h2 := tr.Acquire()
	if tr.openCount != 2 {
		t.Fatalf("openCount = %d, want 2", tr.openCount)
	}

	h1.Release()
	if tr.client == nil {
		t.Fatal("client torn down while a handle is still open")
	}

	h2.Release()
	if tr.client != nil {
		t.Fatal("client not torn down after last Release")
	}
	if tr.openCount != 0 {
		t.Fatalf("openCount = %d, want 0", tr.openCount)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	tr := New(DefaultConfig())

	h1 := tr.Acquire()
	h2 := tr.Acquire()

	h1.Release()
	h1.Release() // must not decrement twice

	if tr.client == nil {
		t.Fatal("double Release on one handle tore down a shared client")
	}
	h2.Release()
	if tr.client != nil {
		t.Fatal("client not torn down after last Release")
	}
}

func TestDo_AfterRelease(t *testing.T) {
	server, _ := newTestServer(t)

	tr := New(DefaultConfig())
	h := tr.Acquire()
	h.Release()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := h.Do(context.Background(), req)
	if !errors.Is(err, ErrReleased) {
		t.Fatalf("Do() after Release error = %v, want ErrReleased", err)
	}
}

func TestPrune_DropsOnlyExpiredEntries(t *testing.T) {
	tr := New(Config{MaxRequests: 10, Period: time.Second})

	base := time.Now()
	tr.window = []time.Time{
		base.Add(-2 * time.Second),
		base.Add(-1500 * time.Millisecond),
		base.Add(-500 * time.Millisecond),
		base,
	}

	tr.prune(base)

	if len(tr.window) != 2 {
		t.Fatalf("window length after prune = %d, want 2", len(tr.window))
	}
	if !tr.window[0].Equal(base.Add(-500 * time.Millisecond)) {
		t.Errorf("oldest retained entry = %v, want base-500ms", tr.window[0])
	}
}
