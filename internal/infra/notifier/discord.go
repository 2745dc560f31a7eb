package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"seriesbell/internal/observability/logging"
	"seriesbell/internal/resilience/circuitbreaker"
	"seriesbell/internal/resilience/retry"
)

// WebhookConfig contains configuration for Discord webhook notifications.
type WebhookConfig struct {
	// Enabled indicates whether webhook notifications are enabled
	Enabled bool

	// URL is the Discord webhook URL (includes authentication token)
	URL string

	// Username overrides the webhook's display name when set
	Username string

	// Timeout is the HTTP request timeout for one webhook call
	Timeout time.Duration
}

// WebhookNotifier posts messages to a Discord webhook.
type WebhookNotifier struct {
	config      WebhookConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retry       retry.Config
}

// NewWebhookNotifier creates a WebhookNotifier.
//
// The notifier is initialized with:
//   - HTTP client with configured timeout
//   - Rate limiter set to 0.5 requests/second with burst of 3
//     (Discord Webhook limit: 30 requests per minute = 0.5 req/s)
//   - the webhook circuit breaker and retry policy
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter("discord-webhook", 0.5, 3),
		breaker:     circuitbreaker.New(circuitbreaker.WebhookConfig()),
		retry:       retry.WebhookConfig(),
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (w *WebhookNotifier) Breaker() *circuitbreaker.CircuitBreaker { return w.breaker }

type webhookPayload struct {
	Username string                    `json:"username,omitempty"`
	Embeds   []*discordgo.MessageEmbed `json:"embeds"`
}

// webhookErrorResponse is the error body Discord returns.
type webhookErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // In seconds
}

func (w *WebhookNotifier) buildPayload(msg Message) webhookPayload {
	return webhookPayload{
		Username: w.config.Username,
		Embeds:   []*discordgo.MessageEmbed{msg.Embed()},
	}
}

// send performs one webhook call.
//
// Error types:
//   - 429: *RateLimitError (retryable, carries retry_after)
//   - 4xx (non-429): *ClientError (non-retryable)
//   - 5xx: *ServerError (retryable)
//   - network errors are returned as-is
func (w *WebhookNotifier) send(ctx context.Context, msg Message) error {
	jsonData, err := json.Marshal(w.buildPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    "Discord rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var apiErr webhookErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return &ClientError{
			StatusCode: resp.StatusCode,
			Code:       apiErr.Code,
			Message:    fmt.Sprintf("Discord webhook client error: %s", string(body)),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Discord webhook server error: %s", string(body)),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// extractRetryAfter reads retry_after from the JSON body, then the
// Retry-After header, defaulting to 5s.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var apiErr webhookErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

// Notify posts msg to the webhook. Calls are rate limited, retried with
// backoff and guarded by the webhook circuit breaker.
func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if !w.config.Enabled || w.config.URL == "" {
		return nil
	}
	logger := logging.FromContext(ctx).With(
		slog.String("request_id", uuid.New().String()),
		slog.String("title", msg.Title))

	if err := w.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	attempt := 0
	err := retry.WithBackoff(ctx, w.retry, func() error {
		attempt++
		_, err := w.breaker.Execute(func() (interface{}, error) {
			return nil, w.send(ctx, msg)
		})
		return err
	})
	if err != nil {
		logger.Error("webhook notification failed",
			slog.Int("attempts", attempt),
			slog.Any("error", err))
		return fmt.Errorf("discord webhook: %w", err)
	}
	logger.Debug("webhook notification sent", slog.Int("attempts", attempt))
	return nil
}
