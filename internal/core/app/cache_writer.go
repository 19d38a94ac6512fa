package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"dtsresolve/internal/core/config"
	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/data/queue"
	"dtsresolve/internal/shared/observability"
)

var errWriteQueueFull = errors.New("write queue full and sync fallback disabled")

// cacheWriter is the durable cache handed to the engine. Reads go straight to
// the store, so a write still buffered is not yet visible. Writes are buffered
// in a memory queue and flushed in batches; overflow spills to the spool and
// then falls back to a direct store write.
type cacheWriter struct {
	store  ports.DurableStore
	queue  ports.WriteQueuePort
	spool  ports.WriteSpoolPort
	cfg    config.WriteQueueConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.DurableCache = (*cacheWriter)(nil)

// newCacheWriter wraps store. With the queue disabled every Put writes
// through. The spool at spoolPath is only opened when enabled.
func newCacheWriter(store ports.DurableStore, cfg config.WriteQueueConfig, spoolPath, namespace string, logger *slog.Logger) (*cacheWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &cacheWriter{store: store, cfg: cfg, logger: logger}
	if !cfg.QueueEnabled() {
		return w, nil
	}
	if cfg.PersistentQueueEnabled() {
		spool, err := queue.OpenSQLiteSpool(spoolPath, namespace)
		if err != nil {
			return nil, fmt.Errorf("open write spool: %w", err)
		}
		w.spool = spool
	}
	w.queue = queue.NewMemoryQueue(cfg.MemoryCapacity)
	w.start()
	return w, nil
}

func (w *cacheWriter) start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx)
}

func (w *cacheWriter) Get(ctx context.Context, key string) (string, bool, error) {
	return w.store.Get(ctx, key)
}

func (w *cacheWriter) Put(ctx context.Context, key, value string) error {
	if w.queue == nil {
		return w.store.Put(ctx, key, value)
	}
	req := ports.WriteRequest{Key: key, Value: value}
	if w.queue.Enqueue(req) == ports.EnqueueAccepted {
		observability.WriteQueueEnqueuedTotal.Inc()
		w.reportDepth()
		return nil
	}
	observability.WriteQueueDroppedTotal.Inc()

	if w.spool != nil {
		err := w.spool.Enqueue(req)
		if err == nil {
			observability.WriteQueueSpilledTotal.Inc()
			w.reportDepth()
			return nil
		}
		w.logger.Warn("write spool rejected overflow", "key", key, "error", err)
	}
	if !w.cfg.SyncFallbackEnabled() {
		return errWriteQueueFull
	}
	return w.store.Put(context.WithoutCancel(ctx), key, value)
}

// run flushes memory writes and due spool rows until the queue is closed and
// nothing due is left, or ctx is canceled.
func (w *cacheWriter) run(ctx context.Context) {
	defer close(w.done)

	size := w.cfg.BatchSize
	if size <= 0 {
		size = 1
	}
	interval := w.cfg.FlushInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		batch, err := w.queue.DequeueBatch(ctx, size, interval)
		closed := errors.Is(err, io.EOF)
		if err != nil && !closed {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("write queue dequeue failed", "error", err)
			continue
		}

		var due []ports.SpoolRow
		if w.spool != nil && len(batch) < size {
			rows, err := w.spool.DequeueBatch(ctx, size-len(batch))
			if err != nil {
				w.logger.Warn("write spool dequeue failed", "error", err)
			}
			due = rows
		}

		if len(batch)+len(due) > 0 {
			w.flush(ctx, batch, due)
		}
		w.reportDepth()
		if closed && len(due) == 0 {
			return
		}
	}
}

// flush applies due spool rows and then memory writes as one store batch, so
// a buffered write wins over an older spooled one. On failure the memory
// writes move to the spool and the spool rows are deferred.
func (w *cacheWriter) flush(ctx context.Context, batch []ports.WriteRequest, due []ports.SpoolRow) {
	writes := make([]ports.WriteRequest, 0, len(due)+len(batch))
	for _, row := range due {
		writes = append(writes, row.Request)
	}
	writes = append(writes, batch...)

	started := time.Now()
	// a batch that started before shutdown still lands
	if err := w.store.PutBatch(context.WithoutCancel(ctx), writes); err != nil {
		observability.WriteQueueApplyErrorsTotal.Inc()
		w.logger.Warn("durable write batch failed", "error", err, "batch_size", len(writes))
		w.retryLater(batch, due, err)
		return
	}
	observability.WriteQueueProcessedTotal.Add(float64(len(writes)))
	observability.WriteQueueFlushLatencySeconds.Observe(time.Since(started).Seconds())

	if len(due) == 0 {
		return
	}
	ids := make([]int64, 0, len(due))
	for _, row := range due {
		ids = append(ids, row.ID)
	}
	if err := w.spool.Ack(ids); err != nil {
		w.logger.Warn("write spool ack failed", "error", err, "count", len(ids))
	}
}

// retryLater parks a failed batch in the spool. Without a spool the writes
// are dropped and the entries are fetched again on next use.
func (w *cacheWriter) retryLater(batch []ports.WriteRequest, due []ports.SpoolRow, cause error) {
	if w.spool == nil {
		return
	}
	for _, req := range batch {
		if err := w.spool.Enqueue(req); err != nil {
			w.logger.Warn("failed to spill write to spool", "key", req.Key, "error", err)
			continue
		}
		observability.WriteQueueSpilledTotal.Inc()
	}
	if len(due) == 0 {
		return
	}

	attempts := 0
	for _, row := range due {
		attempts = max(attempts, row.Attempts)
	}
	next := time.Now().Add(backoffDelay(w.cfg, attempts+1))
	if err := w.spool.Nack(due, next, cause.Error()); err != nil {
		w.logger.Warn("write spool nack failed", "error", err, "count", len(due))
		return
	}
	observability.WriteQueueRetryTotal.Add(float64(len(due)))
}

// backoffDelay doubles the base delay per prior attempt, capped at the max.
func backoffDelay(cfg config.WriteQueueConfig, attempts int) time.Duration {
	base, ceiling := cfg.RetryBaseDelay, cfg.RetryMaxDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	delay := base
	for i := 1; i < attempts && delay < ceiling; i++ {
		delay *= 2
	}
	return min(delay, ceiling)
}

// stop closes the queue and waits for the flusher to drain it along with any
// due spool rows. Rows deferred for retry stay in the spool for the next run.
func (w *cacheWriter) stop(ctx context.Context) error {
	if w.queue != nil {
		_ = w.queue.Close()
		if w.done == nil {
			w.start()
		}
		select {
		case <-w.done:
		case <-ctx.Done():
			w.cancel()
			return fmt.Errorf("drain write queue: %w", ctx.Err())
		}
		w.cancel()
	}
	if w.spool != nil {
		return w.spool.Close()
	}
	return nil
}

// spoolPending reports the number of spooled writes; ok is false without a spool.
func (w *cacheWriter) spoolPending(ctx context.Context) (count int, ok bool, err error) {
	if w.spool == nil {
		return 0, false, nil
	}
	count, err = w.spool.PendingCount(ctx)
	return count, true, err
}

func (w *cacheWriter) reportDepth() {
	if q, ok := w.queue.(interface{ Len() int }); ok {
		observability.WriteQueueDepth.Set(float64(q.Len()))
	}
	if w.spool != nil {
		if count, err := w.spool.PendingCount(context.Background()); err == nil {
			observability.WriteSpoolDepth.Set(float64(count))
		}
	}
}
