package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/jikko/internal/model"
	"github.com/ashita-ai/jikko/internal/telemetry"
)

// maxPendingRecords is the hard upper limit on buffered records to prevent
// unbounded growth when the archive is down. When it is reached,
// RecordExecution applies backpressure by returning an error.
const maxPendingRecords = 10_000

// Recorder batches execution records and writes them to a Store off the
// caller's path, flushing when either the batch size or the flush interval
// is reached. Run lifecycle writes go through synchronously: they happen
// twice per run, and the finish write should land after the buffered
// executions it summarizes.
type Recorder struct {
	store      Store
	logger     *slog.Logger
	maxSize    int
	flushEvery time.Duration

	mu      sync.Mutex
	pending []ExecutionRecord
	seqs    map[uuid.UUID]int

	dropped atomic.Int64 // records discarded after a flush failure at capacity

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc // cancels the flushLoop goroutine
	drainCtx   context.Context    // set by Drain so the final flush respects the caller's deadline
}

// NewRecorder creates a recorder flushing at maxSize records or every
// flushEvery, whichever comes first.
func NewRecorder(store Store, logger *slog.Logger, maxSize int, flushEvery time.Duration) *Recorder {
	return &Recorder{
		store:      store,
		logger:     logger,
		maxSize:    maxSize,
		flushEvery: flushEvery,
		seqs:       make(map[uuid.UUID]int),
		flushCh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start begins the background flush loop and registers the buffer gauges.
// Call Drain to stop.
func (r *Recorder) Start(ctx context.Context) {
	r.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancelLoop = cancel
	go r.flushLoop(loopCtx)
}

// StartRun archives the run row synchronously so later execution records
// always reference an existing run.
func (r *Recorder) StartRun(ctx context.Context, run model.Run) error {
	return WithRetry(ctx, 2, 50*time.Millisecond, func() error {
		return r.store.CreateRun(ctx, run)
	})
}

// RecordExecution buffers one record under the run's next sequence number.
// It returns an error only when the buffer is at capacity.
func (r *Recorder) RecordExecution(_ context.Context, runID uuid.UUID, iteration int, exec model.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Backpressure: reject writes when the buffer is full.
	if len(r.pending) >= maxPendingRecords {
		return fmt.Errorf("storage: recorder at capacity (%d records), try again later", len(r.pending))
	}

	r.seqs[runID]++
	r.pending = append(r.pending, NewExecutionRecord(runID, r.seqs[runID], iteration, exec))

	if len(r.pending) >= r.maxSize {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// FinishRun flushes everything buffered, then archives the terminal state.
// When a flush fails its batch is re-queued, so the finish write can land
// while records are still pending; the background loop retries them and the
// append-only execution table accepts rows for finished runs.
func (r *Recorder) FinishRun(ctx context.Context, run model.Run) error {
	r.flush(ctx)
	if err := WithRetry(ctx, 2, 50*time.Millisecond, func() error {
		return r.store.FinishRun(ctx, run)
	}); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.seqs, run.ID)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush using the drain context provided by Drain().
			// We need a non-cancelled context because ctx is already done.
			if r.drainCtx != nil {
				r.flush(r.drainCtx)
			} else {
				// Fallback for direct cancellation without Drain (e.g., tests).
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				r.flush(fallbackCtx)
				cancel()
			}
			close(r.done)
			return
		case <-ticker.C:
			r.flush(ctx)
		case <-r.flushCh:
			r.flush(ctx)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	start := time.Now()
	err := WithRetry(ctx, 2, 50*time.Millisecond, func() error {
		return r.store.AppendExecutions(ctx, batch)
	})
	duration := time.Since(start)

	if err != nil {
		r.logger.Error("storage: flush failed", "error", err, "batch_size", len(batch))
		// Put records back for retry, but respect the capacity limit.
		r.mu.Lock()
		if len(r.pending)+len(batch) <= maxPendingRecords {
			r.pending = append(batch, r.pending...)
		} else {
			r.dropped.Add(int64(len(batch)))
			r.logger.Error("storage: dropping records, recorder at capacity after flush failure", "dropped", len(batch))
		}
		r.mu.Unlock()
		return
	}

	r.logger.Debug("storage: batch flushed",
		"batch_size", len(batch),
		"flush_duration_ms", duration.Milliseconds(),
	)
}

// Drain signals the background flush loop to stop, waits for its final
// flush, and returns. The ctx controls the maximum time to wait and is
// passed to the final flush so it respects the caller's deadline.
func (r *Recorder) Drain(ctx context.Context) {
	r.drainCtx = ctx // Store so flushLoop's final flush respects caller's deadline.
	if r.cancelLoop != nil {
		r.cancelLoop() // Signal flushLoop to exit; it does a final flush before closing r.done.
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		r.logger.Warn("storage: drain timed out waiting for flush loop")
	}
}

// registerMetrics registers observable gauges for recorder health.
// Called from Start() after the global meter provider has been initialized.
func (r *Recorder) registerMetrics() {
	meter := telemetry.Meter("jikko/archive")

	_, _ = meter.Int64ObservableGauge("jikko.archive.pending",
		metric.WithDescription("Execution records waiting to be flushed"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(r.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("jikko.archive.dropped_total",
		metric.WithDescription("Execution records dropped due to capacity exhaustion"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.Dropped())
			return nil
		}),
	)
}

// Len returns the current number of buffered records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dropped returns the total number of records discarded after flush failures
// filled the buffer. A non-zero value indicates archive data loss.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}
