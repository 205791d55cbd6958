// Package pagination turns the platform's one-page-at-a-time result contract
// into concurrent fan-out fetches.
//
// One probe fetch at offset 0 learns the total result count, then every
// remaining page is fetched in parallel. Because the platform may mutate
// results between fetches, the merged result is always deduplicated by
// entity identity; order is first page first, then remaining pages in
// ascending offset order.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/tradeline/degiro-go/pkg/logging"
)

// Prometheus metrics for paginated queries.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_pagination_pages_total",
		Help: "Total pages fetched by paginated queries",
	})

	fanoutSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "degiro_pagination_fanout_pages",
		Help:    "Number of pages fetched concurrently after the first page",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	duplicatesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_pagination_duplicates_dropped_total",
		Help: "Items dropped by identity dedup during page merge",
	})
)

// ErrBadLimit is returned when FetchAll is called with a non-positive limit.
var ErrBadLimit = errors.New("pagination limit must be positive")

// Page is one page of a paginated result, with the platform-reported total
// result count.
type Page[T any] struct {
	Items []T
	Total int
}

// FetchFunc fetches one page at the given offset. The returned page's Total
// must be the platform's overall result count for the query.
type FetchFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// FetchAll fetches every page of a query, the first page serially to learn
// the total and all remaining pages concurrently. identity extracts the
// dedup key of an item. The first page-fetch error is propagated and the
// other pages' results are discarded.
func FetchAll[T any](ctx context.Context, fetch FetchFunc[T], limit int, identity func(T) string) ([]T, error) {
	if limit <= 0 {
		return nil, ErrBadLimit
	}
	logger := logging.NewLogger("pagination")
	start := time.Now()

	first, err := fetch(ctx, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	pagesFetchedTotal.Inc()

	// The first page may be smaller than limit due to server-side filtering;
	// remaining offsets are planned from its actual size.
	firstSize := len(first.Items)
	if firstSize == 0 || firstSize >= first.Total {
		return dedup(first.Items, identity), nil
	}

	offsets := planOffsets(firstSize, limit, first.Total)
	fanoutSize.Observe(float64(len(offsets)))
	logger.Debug().
		Int("total", first.Total).
		Int("first_page_size", firstSize).
		Int("fanout_pages", len(offsets)).
		Msg("Starting parallel page fetch")

	pages := make([][]T, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	for i, offset := range offsets {
		g.Go(func() error {
			page, err := fetch(gctx, offset, limit)
			if err != nil {
				return fmt.Errorf("fetch page at offset %d: %w", offset, err)
			}
			pagesFetchedTotal.Inc()
			pages[i] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]T, 0, first.Total)
	merged = append(merged, first.Items...)
	for _, items := range pages {
		merged = append(merged, items...)
	}
	result := dedup(merged, identity)

	logger.Debug().
		Int("pages", len(offsets)+1).
		Int("items", len(result)).
		Dur("duration", time.Since(start)).
		Msg("Parallel page fetch complete")

	return result, nil
}

// planOffsets covers [firstPageSize, total) in steps of limit.
func planOffsets(firstPageSize, limit, total int) []int {
	var offsets []int
	for offset := firstPageSize; offset < total; offset += limit {
		offsets = append(offsets, offset)
	}
	return offsets
}

// dedup keeps the first occurrence of each identity, preserving order.
func dedup[T any](items []T, identity func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		id := identity(item)
		if _, ok := seen[id]; ok {
			duplicatesDroppedTotal.Inc()
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}
