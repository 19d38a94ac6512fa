package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsresolve/internal/core/errors"
)

func testClient() *Client {
	return New(Options{
		Timeout:      2 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
		UserAgent:    "dtsresolve-test",
	})
}

func TestClient_Get_ReturnsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dtsresolve-test", r.Header.Get("User-Agent"))
		w.Header().Set("X-TypeScript-Types", "/v135/@types/react@18.2.0/index.d.ts")
		_, _ = w.Write([]byte("export {};"))
	}))
	defer srv.Close()

	c := testClient()
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL+"/react@18.2.0")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "export {};", string(resp.Body))
	assert.Equal(t, "/v135/@types/react@18.2.0/index.d.ts", resp.Header.Get("X-TypeScript-Types"))
}

func TestClient_Get_NotFoundIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := testClient()
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClient_Get_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient()
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_Get_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient()
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClient_Get_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{RetryMax: 0, Timeout: time.Second})
	defer c.Close()

	_, err := c.Get(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTransport), "got %v", err)
}

func TestClient_Get_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := testClient()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled), "got %v", err)
}

func TestClient_Get_TruncatesOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := New(Options{MaxBodyBytes: 4})
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(resp.Body))
}
