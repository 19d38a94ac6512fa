package ports

import (
	"context"
	"net/http"
	"time"
)

// Response is a completed registry exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs GET requests against the registry. An error means the
// request could not complete; any received response is returned as-is.
type Transport interface {
	Get(ctx context.Context, url string) (*Response, error)
}

// CacheReader reads durable cache entries.
type CacheReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// CacheWriter persists durable cache entries. Implementations may defer the
// write; callers do not wait for it.
type CacheWriter interface {
	Put(ctx context.Context, key, value string) error
}

// DurableCache is the read/write view of the durable store used by resolution.
type DurableCache interface {
	CacheReader
	CacheWriter
}

// DurableStore is a persistent key/value backend.
type DurableStore interface {
	DurableCache
	PutBatch(ctx context.Context, batch []WriteRequest) error
	Close() error
}

// WriteRequest is one deferred durable cache write.
type WriteRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type EnqueueResult string

const (
	EnqueueAccepted EnqueueResult = "accepted"
	EnqueueDropped  EnqueueResult = "dropped"
)

// WriteQueuePort is the in-memory buffer in front of the durable store.
type WriteQueuePort interface {
	Enqueue(req WriteRequest) EnqueueResult
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]WriteRequest, error)
	Close() error
}

// SpoolRow is a persisted write request awaiting application.
type SpoolRow struct {
	ID       int64
	Request  WriteRequest
	Attempts int
}

// WriteSpoolPort is the persistent overflow for writes the memory queue could
// not accept or failed to apply.
type WriteSpoolPort interface {
	Enqueue(req WriteRequest) error
	DequeueBatch(ctx context.Context, maxItems int) ([]SpoolRow, error)
	Ack(ids []int64) error
	Nack(rows []SpoolRow, nextAttemptAt time.Time, lastErr string) error
	PendingCount(ctx context.Context) (int, error)
	Close() error
}
