// Package provider talks to an OpenAI-compatible chat completion service.
//
// Retries are not done here: the SDK's own retry loop is disabled and every
// error is classified so the caller's retry policy can decide.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// DefaultTimeout bounds one request attempt.
const DefaultTimeout = 120 * time.Second

// ErrEmptyContent is returned when the service answers without any text.
var ErrEmptyContent = errors.New("empty completion content")

// Config describes the endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Proxy       string
	Timeout     time.Duration
	Temperature *float64
	// HTTPClient overrides the client built from Proxy and Timeout.
	HTTPClient *http.Client
}

// OpenAI is a Completer backed by the openai-go SDK.
type OpenAI struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	temperature *float64
}

// New returns a client for cfg.
func New(cfg Config) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = makeHTTPClient(cfg.Proxy)
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
	}, nil
}

// Model returns the model name requests are sent to.
func (p *OpenAI) Model() string {
	return p.model
}

// Complete sends one system + user exchange and returns the reply text.
func (p *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if p.temperature != nil {
		params.Temperature = openai.Float(*p.temperature)
	}

	resp, err := p.client.Chat.Completions.New(attemptCtx, params)
	if err != nil {
		return "", p.wrap(ctx, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyContent
	}
	return resp.Choices[0].Message.Content, nil
}

// wrap converts SDK and transport errors into the classified forms below.
func (p *OpenAI) wrap(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		se := &StatusError{Code: apiErr.StatusCode, Message: apiErr.Message}
		if se.Message == "" {
			se.Message = http.StatusText(apiErr.StatusCode)
		}
		if apiErr.Response != nil {
			se.retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"), apiErr.RawJSON())
		}
		if se.Code == http.StatusTooManyRequests && se.retryAfter == 0 {
			se.retryAfter = parseRetryAfter("", apiErr.RawJSON())
		}
		return se
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return fmt.Errorf("API request failed: %w", err)
}

// ---------------------------------------------------------------------------
// Errors and classification
// ---------------------------------------------------------------------------

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code       int
	Message    string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, truncate(e.Message, 500))
}

// RetryAfter is the wait the server asked for, zero when it did not say.
func (e *StatusError) RetryAfter() time.Duration {
	if e.Code != http.StatusTooManyRequests {
		return 0
	}
	return e.retryAfter
}

// TimeoutError is an attempt that ran out of time.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return "request timed out: " + e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is transient: rate limiting, request
// timeout, conflict, server errors and attempt timeouts. Cancellation,
// client errors and empty content are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyContent) {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests,
			se.Code == http.StatusRequestTimeout,
			se.Code == http.StatusConflict,
			se.Code >= 500:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Connection resets and other transport failures.
	return true
}

// parseRetryAfter reads a Retry-After header (seconds or HTTP date) and
// falls back to a RetryInfo detail in the error body. Zero when neither is
// present.
func parseRetryAfter(header string, body string) time.Duration {
	if header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(header); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if body == "" || json.Unmarshal([]byte(body), &errResp) != nil {
		return 0
	}
	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			// Parse duration like "30s", "45.123s"
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Support both the proxy setting and HTTP_PROXY/HTTPS_PROXY env vars
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return &http.Client{Transport: transport}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
