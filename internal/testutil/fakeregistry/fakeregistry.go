// Package fakeregistry is an in-memory ports.Transport for tests.
package fakeregistry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/engine/registry"
)

// Registry serves canned responses keyed by URL. Unknown URLs answer 404.
type Registry struct {
	mu        sync.Mutex
	responses map[string]*ports.Response
	failures  map[string]error
	calls     map[string]int
	delay     time.Duration
}

var _ ports.Transport = (*Registry)(nil)

func New() *Registry {
	return &Registry{
		responses: make(map[string]*ports.Response),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

// AddFile serves content with status 200.
func (r *Registry) AddFile(url, content string) {
	r.AddResponse(url, &ports.Response{StatusCode: http.StatusOK, Body: []byte(content)})
}

// AddPackage serves a package URL advertising entryURL in the types header.
func (r *Registry) AddPackage(url, entryURL string) {
	header := http.Header{}
	header.Set(registry.DefaultTypesHeader, entryURL)
	r.AddResponse(url, &ports.Response{StatusCode: http.StatusOK, Header: header})
}

func (r *Registry) AddResponse(url string, resp *ports.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[url] = resp
}

// Fail makes requests for url return err. A nil err yields a transport error.
func (r *Registry) Fail(url string, err error) {
	if err == nil {
		err = errors.New(errors.CodeTransport, "connection refused")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[url] = err
}

// SetDelay makes every request block for d or until its context ends.
func (r *Registry) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

func (r *Registry) Calls(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[url]
}

func (r *Registry) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

func (r *Registry) Get(ctx context.Context, url string) (*ports.Response, error) {
	r.mu.Lock()
	r.calls[url]++
	delay := r.delay
	resp, ok := r.responses[url]
	failure := r.failures[url]
	r.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "request canceled")
	}
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return &ports.Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	}
	out := *resp
	out.Body = append([]byte(nil), resp.Body...)
	out.Header = resp.Header.Clone()
	return &out, nil
}
