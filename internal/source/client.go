// Package source fetches rows from the MLB Stats API and asks the fantasy
// loader service to materialize its files.
package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

// json decodes numbers as json.Number so integer ids survive as int64 when
// rows become tables.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// DefaultTimeout bounds a single source request.
const DefaultTimeout = 60 * time.Second

const userAgent = "mlbstats/1.0"

// Client issues rate-limited JSON GET requests.
//
// Client is safe for concurrent use.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client. Default: 60s timeout, 5 requests/s.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(5, 5),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches rawURL and decodes the JSON body into out. Extra headers
// are added to the request. Non-200 responses yield *RequestError and
// undecodable bodies *ParseError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RequestError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &RequestError{URL: rawURL, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("source request", "url", rawURL, "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &RequestError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return &ParseError{URL: rawURL, Err: err}
	}
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return &ParseError{URL: rawURL, Err: err}
	}
	return nil
}
