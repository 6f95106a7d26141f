package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"marketcontext/internal/model"
)

// snapshotSink is what BufferedWriter protects; *Writer satisfies it.
type snapshotSink interface {
	PublishSnapshot(ctx context.Context, snap *model.EnrichedMarketData) error
}

// BufferedWriter publishes snapshots through a circuit breaker.
// While the circuit is open, the newest snapshot per instrument is held
// locally and replayed when the circuit closes again. Older pending
// snapshots for the same instrument are superseded, not queued.
type BufferedWriter struct {
	sink snapshotSink
	cb   *CircuitBreaker
	ctx  context.Context

	mu      sync.Mutex
	pending map[string]*model.EnrichedMarketData
	order   []string // first-buffered order, for deterministic replay
	maxBuf  int

	// Callbacks
	OnBuffer func()          // called when a snapshot is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered snapshots
}

// NewBufferedWriter wraps sink with cb. maxBufferSize bounds the number of
// distinct instruments held (default 10000).
func NewBufferedWriter(ctx context.Context, sink snapshotSink, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		sink:    sink,
		cb:      cb,
		ctx:     ctx,
		pending: make(map[string]*model.EnrichedMarketData),
		maxBuf:  maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.Flush()
		}
	}

	return bw
}

// PublishSnapshot sends snap through the circuit breaker. When the circuit
// is open the snapshot is buffered and nil is returned.
func (bw *BufferedWriter) PublishSnapshot(ctx context.Context, snap *model.EnrichedMarketData) error {
	err := bw.cb.Execute(func() error {
		return bw.sink.PublishSnapshot(ctx, snap)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.buffer(snap)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) buffer(snap *model.EnrichedMarketData) {
	key := snap.Key()

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if _, ok := bw.pending[key]; !ok {
		if len(bw.order) >= bw.maxBuf {
			// buffer full: drop the oldest instrument
			delete(bw.pending, bw.order[0])
			bw.order = bw.order[1:]
		}
		bw.order = append(bw.order, key)
	}
	bw.pending[key] = snap

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// Flush replays buffered snapshots through the sink, bypassing the breaker.
func (bw *BufferedWriter) Flush() {
	bw.mu.Lock()
	if len(bw.order) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	order, pending := bw.order, bw.pending
	bw.order = nil
	bw.pending = make(map[string]*model.EnrichedMarketData)
	bw.mu.Unlock()

	flushed := 0
	for _, key := range order {
		if err := bw.sink.PublishSnapshot(bw.ctx, pending[key]); err != nil {
			log.Printf("[buffered-writer] replay %s failed: %v", key, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered snapshots", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of instruments waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.order)
}
