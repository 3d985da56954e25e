// Package telegram provides a minimal client for the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ParseModeHTML requests Telegram's HTML message rendering.
const ParseModeHTML = "HTML"

// Client defines the Bot API operations the watcher needs.
type Client interface {
	// SendMessage posts text to a chat and returns the new message ID.
	SendMessage(ctx context.Context, chatID, text string, opts ...SendOption) (int64, error)
}

// APIError is a Bot API level failure (ok=false in the envelope).
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram: API error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram: API error %d: %s", e.Code, e.Description)
}

// apiResponse is the Bot API envelope common to every method.
type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

// SendOption configures a single sendMessage call.
type SendOption func(*sendOpts)

type sendOpts struct {
	parseMode      string
	disablePreview bool
}

// WithParseMode sets the message parse mode, e.g. ParseModeHTML.
func WithParseMode(mode string) SendOption {
	return func(o *sendOpts) {
		o.parseMode = mode
	}
}

// WithoutPreview disables link previews for the message.
func WithoutPreview() SendOption {
	return func(o *sendOpts) {
		o.disablePreview = true
	}
}

// Option configures the Telegram client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithMaxRetries sets the total number of attempts per call.
func WithMaxRetries(n int) Option {
	return func(c *httpClient) {
		c.maxRetries = n
	}
}

type httpClient struct {
	token      string
	baseURL    string
	http       *http.Client
	maxRetries int
}

// NewClient creates a new Bot API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:      token,
		baseURL:    "https://api.telegram.org",
		maxRetries: 3,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// postForm calls one Bot API method with exponential backoff retries on
// transient failures, honoring the server's retry_after hint on 429.
// Returns the raw result payload of a successful envelope.
func (c *httpClient) postForm(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	encoded := form.Encode()
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, eris.Wrap(err, "telegram: create request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "telegram: read response body")
		}

		var envelope apiResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			// Proxies answer with HTML on occasion; only the status helps.
			lastErr = eris.Errorf("telegram: status %d: %s", resp.StatusCode, string(body))
			if retryableStatusCode(resp.StatusCode) && attempt < c.maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		if envelope.OK {
			return envelope.Result, nil
		}

		apiErr := &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		lastErr = apiErr

		if retryableStatusCode(apiErr.Code) && attempt < c.maxRetries {
			wait := backoff
			if apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
			continue
		}
		return nil, lastErr
	}

	return nil, lastErr
}

func (c *httpClient) SendMessage(ctx context.Context, chatID, text string, opts ...SendOption) (int64, error) {
	so := &sendOpts{}
	for _, opt := range opts {
		opt(so)
	}

	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	if so.parseMode != "" {
		form.Set("parse_mode", so.parseMode)
	}
	if so.disablePreview {
		form.Set("disable_web_page_preview", "true")
	}

	result, err := c.postForm(ctx, "sendMessage", form)
	if err != nil {
		return 0, eris.Wrap(err, "telegram: send message")
	}

	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &msg); err != nil {
		return 0, eris.Wrap(err, "telegram: unmarshal message")
	}
	return msg.MessageID, nil
}
