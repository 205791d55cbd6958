// Package batch implements the chunked entity-resolution pipeline.
//
// Input records are buffered into fixed-size chunks; each chunk is resolved
// through a single network call scheduled as soon as the chunk fills, so
// resolution of distinct chunks overlaps. Entities are yielded in input
// order regardless of chunk completion order, and no scheduled chunk is ever
// left unobserved: every exit path drains outstanding chunk tasks first.
package batch

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tradeline/degiro-go/pkg/logging"
)

// Prometheus metrics for resolver pipelines.
var (
	chunksScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_batch_chunks_total",
		Help: "Total chunks scheduled for resolution",
	})

	chunksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "degiro_batch_chunks_in_flight",
		Help: "Chunk resolution tasks currently in flight",
	})

	chunkFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_batch_chunk_faults_total",
		Help: "Total chunk resolution faults propagated to consumers",
	})

	entitiesResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_batch_entities_total",
		Help: "Total entities yielded by resolver pipelines",
	})
)

// DefaultChunkSize is the number of records resolved per network call.
const DefaultChunkSize = 50

// ResolveFunc resolves a deduplicated set of identity keys in one call.
// The returned map must contain an entry for every requested key.
type ResolveFunc[E any] func(ctx context.Context, keys []string) (map[string]E, error)

// ChunkError reports the failure of one chunk's resolution, carrying the
// chunk index for diagnosis.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("resolve chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Resolver turns a sequence of lightweight records into resolved entities,
// batching resolution calls by chunks of identity keys.
type Resolver[R, E any] struct {
	resolve   ResolveFunc[E]
	key       func(R) string
	chunkSize int
	logger    zerolog.Logger
}

// NewResolver creates a resolver. key extracts the identity key of a record;
// chunkSize <= 0 selects DefaultChunkSize.
func NewResolver[R, E any](resolve ResolveFunc[E], key func(R) string, chunkSize int) *Resolver[R, E] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Resolver[R, E]{
		resolve:   resolve,
		key:       key,
		chunkSize: chunkSize,
		logger:    logging.NewLogger("batch"),
	}
}

// pendingChunk is a scheduled, not yet consumed resolution task.
type pendingChunk[E any] struct {
	index    int
	keys     []string // one per input record, duplicates included
	done     chan struct{}
	entities map[string]E
	err      error
}

// Stream resolves records lazily. Entities come out in the order their input
// records arrived; duplicate records share one resolved entity. A chunk's
// entities are yielded as soon as the chunk completes and every earlier chunk
// has been yielded, even while input records are still arriving. The first
// chunk fault ends the sequence with a ChunkError after all sibling chunks
// have been drained. Stopping the consumer early likewise drains every
// outstanding chunk before the sequence returns.
func (r *Resolver[R, E]) Stream(ctx context.Context, records iter.Seq[R]) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		ctx, cancel := context.WithCancel(ctx)

		// The feeder consumes input and hands over full chunks of keys.
		// Scheduling and yielding both stay on the consumer side, so a slow
		// producer never delays entities of already-completed chunks.
		chunks := make(chan []string)
		go func() {
			defer close(chunks)
			flush := func(keys []string) bool {
				select {
				case chunks <- keys:
					return true
				case <-ctx.Done():
					return false
				}
			}
			var buf []string
			for rec := range records {
				buf = append(buf, r.key(rec))
				if len(buf) == r.chunkSize {
					if !flush(buf) {
						return
					}
					buf = nil
				}
			}
			if len(buf) > 0 {
				flush(buf)
			}
		}()

		// After cancel the feeder can no longer block on a send, so draining
		// only has to wait for the scheduled resolution tasks.
		var tasks []*pendingChunk[E]
		drain := func() {
			cancel()
			for _, p := range tasks {
				<-p.done
			}
		}
		defer drain()

		emit := func(p *pendingChunk[E]) bool {
			if p.err == nil {
				if missing, ok := firstMissingKey(p); ok {
					p.err = fmt.Errorf("no entity resolved for key %q", missing)
				}
			}
			if p.err != nil {
				chunkFaultsTotal.Inc()
				// Drain every sibling before the fault surfaces.
				drain()
				r.logger.Warn().
					Int("chunk", p.index).
					Err(p.err).
					Msg("Chunk resolution failed")
				var zero E
				yield(zero, &ChunkError{Index: p.index, Err: p.err})
				return false
			}
			for _, k := range p.keys {
				entitiesResolvedTotal.Inc()
				if !yield(p.entities[k], nil) {
					return false
				}
			}
			return true
		}

		next := 0
		open := true
		for open || next < len(tasks) {
			switch {
			case open && next < len(tasks):
				// Wait on input and the oldest unyielded chunk at once.
				select {
				case keys, ok := <-chunks:
					if !ok {
						open = false
						continue
					}
					tasks = append(tasks, r.schedule(ctx, len(tasks), keys))
				case <-tasks[next].done:
					if !emit(tasks[next]) {
						return
					}
					next++
				}
			case open:
				keys, ok := <-chunks
				if !ok {
					open = false
					continue
				}
				tasks = append(tasks, r.schedule(ctx, len(tasks), keys))
			default:
				<-tasks[next].done
				if !emit(tasks[next]) {
					return
				}
				next++
			}
		}
	}
}

// All resolves a slice of records eagerly, returning entities in input order.
func (r *Resolver[R, E]) All(ctx context.Context, records []R) ([]E, error) {
	out := make([]E, 0, len(records))
	for e, err := range r.Stream(ctx, slices.Values(records)) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// schedule starts the resolution task for one chunk. Keys are deduplicated
// before the call; the resolution endpoint rejects duplicates.
func (r *Resolver[R, E]) schedule(ctx context.Context, index int, keys []string) *pendingChunk[E] {
	p := &pendingChunk[E]{
		index: index,
		keys:  keys,
		done:  make(chan struct{}),
	}
	uniq := dedupKeys(keys)

	chunksScheduledTotal.Inc()
	chunksInFlight.Inc()
	r.logger.Debug().
		Int("chunk", index).
		Int("records", len(keys)).
		Int("unique_keys", len(uniq)).
		Msg("Chunk scheduled")

	go func() {
		defer close(p.done)
		defer chunksInFlight.Dec()
		p.entities, p.err = r.resolve(ctx, uniq)
	}()
	return p
}

// firstMissingKey reports a key of the chunk absent from the resolved map.
func firstMissingKey[E any](p *pendingChunk[E]) (string, bool) {
	for _, k := range p.keys {
		if _, ok := p.entities[k]; !ok {
			return k, true
		}
	}
	return "", false
}

// dedupKeys preserves first-seen order.
func dedupKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
