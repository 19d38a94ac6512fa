// Package httpfetch is the registry transport: a retrying HTTP client with
// per-host rate limiting.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"dtsresolve/internal/core/errors"
	"dtsresolve/internal/core/ports"
	"dtsresolve/internal/shared/util"
)

var _ ports.Transport = (*Client)(nil)

const defaultMaxBodyBytes int64 = 32 << 20

type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit is requests per second per host; <= 0 disables limiting.
	RateLimit    float64
	Burst        int
	UserAgent    string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type Client struct {
	client    *retryablehttp.Client
	limiter   *util.HostLimiter
	userAgent string
	maxBody   int64
}

func New(opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	if opts.RetryMax >= 0 {
		rc.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	// Exhausted retries hand back the last response so a persistent 5xx is an
	// empty resolution rather than a transport failure.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	} else {
		rc.Logger = nil
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Client{
		client:    rc,
		limiter:   util.NewHostLimiter(opts.RateLimit, opts.Burst, 10*time.Minute),
		userAgent: opts.UserAgent,
		maxBody:   maxBody,
	}
}

// Get performs a GET request. Any HTTP status is returned as a response; only
// requests that could not complete yield an error.
func (c *Client) Get(ctx context.Context, url string) (*ports.Response, error) {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return nil, c.failure(ctx, url, err)
	}

	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "build request"), errors.CtxURL, url)
	}
	req = req.WithContext(ctx)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.failure(ctx, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, c.failure(ctx, url, fmt.Errorf("read body: %w", err))
	}
	return &ports.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Close releases pooled idle connections.
func (c *Client) Close() {
	c.client.HTTPClient.CloseIdleConnections()
}

func (c *Client) failure(ctx context.Context, url string, err error) error {
	code := errors.CodeTransport
	if ctx.Err() != nil {
		code = errors.CodeCanceled
	}
	return errors.AddContext(errors.Wrap(err, code, "registry request failed"), errors.CtxURL, url)
}
