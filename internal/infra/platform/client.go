package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/observability/tracing"
	"seriesbell/internal/resilience/circuitbreaker"
	"seriesbell/internal/resilience/retry"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 10 * time.Second
	// UserAgent identifies the bot; MangaDex rejects spoofed agents.
	UserAgent = "seriesbell/0.1"

	maxBodySize = 1 << 20
)

// Options tune an adapter. The zero value is production configuration.
type Options struct {
	// HTTPClient is shared by adapters; its own Timeout is ignored in favour of Timeout.
	HTTPClient *http.Client
	// Timeout bounds each HTTP attempt. Defaults to DefaultTimeout.
	Timeout time.Duration
	// BaseURL replaces the platform API endpoint (tests).
	BaseURL string
	// Limiter replaces the platform's published rate limit (tests).
	Limiter *rate.Limiter
	// Retry replaces retry.PlatformAPIConfig().
	Retry *retry.Config
}

// response is what a single HTTP attempt produced.
type response struct {
	status int
	body   []byte
}

// client is the transport shared by all adapters: limiter admission,
// per-attempt timeout, circuit breaker, bounded retry, body limit.
type client struct {
	platformID string
	http       *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config
}

func newClient(platformID string, defaultLimit *rate.Limiter, opts Options) *client {
	c := &client{
		platformID: platformID,
		http:       opts.HTTPClient,
		timeout:    opts.Timeout,
		limiter:    opts.Limiter,
		breaker:    circuitbreaker.New(circuitbreaker.PlatformAPIConfig(platformID)),
		retryCfg:   retry.PlatformAPIConfig(),
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.limiter == nil {
		c.limiter = defaultLimit
	}
	if opts.Retry != nil {
		c.retryCfg = *opts.Retry
	}
	return c
}

// quotaLimiter admits at most n requests in any window of the given length.
// The burst is 1 so that a full bucket cannot add a second quota on top of
// the refill.
func quotaLimiter(n int, window time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(window/time.Duration(n)), 1)
}

// Breaker exposes the circuit breaker for health reporting.
func (c *client) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

func (c *client) get(ctx context.Context, rawURL string, query url.Values) (*response, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, rawURL, nil, "")
}

func (c *client) postJSON(ctx context.Context, rawURL string, body []byte) (*response, error) {
	return c.do(ctx, http.MethodPost, rawURL, body, "application/json")
}

// do runs one logical request. Each attempt waits for the limiter first, so
// retries are also counted against the platform's quota. 4xx answers other
// than 408 and 429 are returned to the caller for mapping; 5xx, 408 and 429
// are retried and count against the breaker.
func (c *client) do(ctx context.Context, method, rawURL string, body []byte, contentType string) (*response, error) {
	var out *response
	err := retry.WithBackoff(ctx, c.retryCfg, func() error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.attempt(ctx, method, rawURL, body, contentType)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				slog.WarnContext(ctx, "platform circuit breaker open, request rejected",
					slog.String("platform", c.platformID),
					slog.String("state", c.breaker.State().String()))
			}
			return err
		}
		out = res.(*response)
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Platform: c.platformID, Err: err}
	}
	return out, nil
}

func (c *client) wait(ctx context.Context) error {
	start := time.Now()
	if c.limiter.Tokens() < 1 {
		slog.DebugContext(ctx, "platform is rate limited, waiting",
			slog.String("platform", c.platformID))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	metrics.RecordRateLimitWait(c.platformID, time.Since(start))
	return nil
}

func (c *client) attempt(ctx context.Context, method, rawURL string, body []byte, contentType string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.8")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Limit body size to prevent memory exhaustion
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodySize)
	}

	switch {
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout:
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status: %s", resp.Status),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// parseRetryAfter accepts delta-seconds only; HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// instrument wraps an adapter operation in a span and records its outcome.
// SourceFinished and EmptySeries are answers, not failures, for the span status.
func (c *client) instrument(ctx context.Context, op, sourceID string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "platform."+op,
		attribute.String("platform", c.platformID),
		attribute.String("source_id", sourceID))
	defer func() {
		outcome := "success"
		spanErr := err
		if err != nil {
			outcome = KindOf(err).String()
			if IsKind(err, KindSourceFinished) || IsKind(err, KindEmptySeries) {
				span.SetAttributes(attribute.String("platform.outcome", outcome))
				spanErr = nil
			}
		}
		metrics.RecordPlatformRequest(c.platformID, op, outcome, time.Since(start))
		tracing.EndSpan(span, spanErr)
	}()
	return fn(ctx)
}

// nthPathSegment returns the n-th non-empty path segment of rawURL after
// checking that its host is domain or a subdomain of it. When prefix is
// set, the segment before the id must equal it.
func nthPathSegment(rawURL, domain string, n int, prefix string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", &URLParseError{URL: rawURL, Reason: "invalid format"}
	}
	if !hostMatches(u.Hostname(), domain) {
		return "", &URLParseError{URL: rawURL, Reason: "host is not " + domain}
	}

	var segs []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			segs = append(segs, p)
		}
	}
	if n >= len(segs) {
		return "", &URLParseError{URL: rawURL, Reason: "missing id"}
	}
	if prefix != "" && n > 0 && segs[n-1] != prefix {
		return "", &URLParseError{URL: rawURL, Reason: "expected /" + prefix + "/ path"}
	}
	return segs[n], nil
}

func hostMatches(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
