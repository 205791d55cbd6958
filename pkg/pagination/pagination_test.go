package pagination

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

type item struct {
	id string
}

func ident(it item) string { return it.id }

// pageServer serves a fixed item universe page by page and records fetches.
type pageServer struct {
	universe []item

	mu       sync.Mutex
	offsets  []int
	inFlight int
	overlap  bool
	delay    time.Duration
	failAt   int // offset that fails, -1 for none
}

func newPageServer(n int) *pageServer {
	s := &pageServer{failAt: -1}
	for i := 0; i < n; i++ {
		s.universe = append(s.universe, item{id: fmt.Sprintf("item-%03d", i)})
	}
	return s
}

func (s *pageServer) fetch(ctx context.Context, offset, limit int) (Page[item], error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	failAt, delay := s.failAt, s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if offset == failAt {
		return Page[item]{}, errors.New("page fetch failed")
	}

	end := offset + limit
	if end > len(s.universe) {
		end = len(s.universe)
	}
	if offset >= len(s.universe) {
		return Page[item]{Total: len(s.universe)}, nil
	}
	return Page[item]{
		Items: slices.Clone(s.universe[offset:end]),
		Total: len(s.universe),
	}, nil
}

func (s *pageServer) fetchedOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.offsets)
	slices.Sort(out)
	return out
}

func TestFetchAll_Completeness(t *testing.T) {
	s := newPageServer(237)

	got, err := FetchAll(context.Background(), s.fetch, 100, ident)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}

	if len(got) != 237 {
		t.Fatalf("FetchAll() returned %d items, want 237", len(got))
	}
	if want := []int{0, 100, 200}; !slices.Equal(s.fetchedOffsets(), want) {
		t.Errorf("fetched offsets = %v, want %v", s.fetchedOffsets(), want)
	}

	// All identities unique and in offset order.
	seen := make(map[string]bool)
	for _, it := range got {
		if seen[it.id] {
			t.Fatalf("duplicate identity %q in result", it.id)
		}
		seen[it.id] = true
	}
	if got[0].id != "item-000" || got[236].id != "item-236" {
		t.Errorf("result not in offset order: first %q, last %q", got[0].id, got[236].id)
	}
}

func TestFetchAll_RemainingPagesConcurrent(t *testing.T) {
	s := newPageServer(300)
	s.delay = 60 * time.Millisecond

	start := time.Now()
	_, err := FetchAll(context.Background(), s.fetch, 100, ident)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	overlap := s.overlap
	s.mu.Unlock()
	if !overlap {
		t.Error("page fetches at offsets 100 and 200 never overlapped in flight")
	}
	// First page serial + both remaining pages in parallel: ~2 delays, not 3.
	if elapsed > 170*time.Millisecond {
		t.Errorf("FetchAll took %v, expected concurrent remaining pages", elapsed)
	}
}

func TestFetchAll_SinglePage(t *testing.T) {
	s := newPageServer(42)

	got, err := FetchAll(context.Background(), s.fetch, 100, ident)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if len(got) != 42 {
		t.Errorf("FetchAll() returned %d items, want 42", len(got))
	}
	if want := []int{0}; !slices.Equal(s.fetchedOffsets(), want) {
		t.Errorf("fetched offsets = %v, want %v (no fan-out needed)", s.fetchedOffsets(), want)
	}
}

func TestFetchAll_FilteredFirstPagePlansFromItsSize(t *testing.T) {
	// Server-side filtering shrank the first page below the limit; the plan
	// must start at the actual first page size.
	s := newPageServer(237)
	filtered := func(ctx context.Context, offset, limit int) (Page[item], error) {
		page, err := s.fetch(ctx, offset, limit)
		if err != nil || offset != 0 {
			return page, err
		}
		page.Items = page.Items[:80]
		return page, nil
	}

	got, err := FetchAll(context.Background(), filtered, 100, ident)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}

	if want := []int{0, 80, 180}; !slices.Equal(s.fetchedOffsets(), want) {
		t.Errorf("fetched offsets = %v, want %v", s.fetchedOffsets(), want)
	}
	if len(got) != 237 {
		t.Errorf("FetchAll() returned %d items, want 237", len(got))
	}
}

func TestFetchAll_DeduplicatesAcrossPages(t *testing.T) {
	// A concurrent platform-side mutation shifted results so one item shows
	// up on two pages.
	s := newPageServer(150)
	shifted := func(ctx context.Context, offset, limit int) (Page[item], error) {
		page, err := s.fetch(ctx, offset, limit)
		if err != nil || offset == 0 {
			return page, err
		}
		page.Items = append([]item{{id: "item-099"}}, page.Items...)
		return page, nil
	}

	got, err := FetchAll(context.Background(), shifted, 100, ident)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}

	count := 0
	for _, it := range got {
		if it.id == "item-099" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("item-099 appears %d times, want 1 (dedup by identity)", count)
	}
}

func TestFetchAll_PageFaultDiscardsPartialResults(t *testing.T) {
	s := newPageServer(300)
	s.failAt = 200

	got, err := FetchAll(context.Background(), s.fetch, 100, ident)
	if err == nil {
		t.Fatal("FetchAll() error = nil, want page fault")
	}
	if got != nil {
		t.Errorf("FetchAll() returned %d items alongside error, want nil", len(got))
	}
	if want := "offset 200"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not name the offending offset", err)
	}
}

func TestFetchAll_FirstPageFault(t *testing.T) {
	s := newPageServer(300)
	s.failAt = 0

	_, err := FetchAll(context.Background(), s.fetch, 100, ident)
	if err == nil {
		t.Fatal("FetchAll() error = nil, want first page fault")
	}
	if len(s.fetchedOffsets()) != 1 {
		t.Errorf("fetched %v, want only the failed first page", s.fetchedOffsets())
	}
}

func TestFetchAll_BadLimit(t *testing.T) {
	s := newPageServer(10)
	_, err := FetchAll(context.Background(), s.fetch, 0, ident)
	if !errors.Is(err, ErrBadLimit) {
		t.Fatalf("FetchAll() error = %v, want ErrBadLimit", err)
	}
}

func TestPlanOffsets(t *testing.T) {
	tests := []struct {
		name          string
		firstPageSize int
		limit         int
		total         int
		expected      []int
	}{
		{"exact pages", 100, 100, 237, []int{100, 200}},
		{"filtered first page", 80, 100, 237, []int{80, 180}},
		{"single remaining page", 100, 100, 150, []int{100}},
		{"no remaining pages", 100, 100, 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planOffsets(tt.firstPageSize, tt.limit, tt.total)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("planOffsets(%d, %d, %d) = %v, want %v",
					tt.firstPageSize, tt.limit, tt.total, got, tt.expected)
			}
		})
	}
}
