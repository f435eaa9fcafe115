package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/firesafely/marketplace/pkg/logger"
	"github.com/firesafely/marketplace/pkg/middleware"
	"github.com/firesafely/marketplace/pkg/resilience"
	"github.com/google/uuid"
)

// Client wraps http.Client with the marketplace API conventions: bearer
// session tokens, envelope decoding, correlation-ID propagation, and
// optional retry and circuit breaking.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	retryConfig *resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// Option configures the client
type Option func(*Client)

// WithRetry enables retry logic with the given configuration
func WithRetry(config resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retryConfig = &config
	}
}

// WithDefaultRetry enables the default retry configuration with an
// HTTP-aware retryable check
func WithDefaultRetry() Option {
	config := resilience.DefaultRetryConfig()
	config.RetryableChecker = isHTTPRetryable
	return func(c *Client) {
		c.retryConfig = &config
	}
}

// WithBreaker routes every request through the given circuit breaker
func WithBreaker(breaker *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithHTTPClient replaces the underlying http.Client (tests mostly)
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new marketplace API client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Get issues a GET request and decodes the response envelope.
func (c *Client) Get(ctx context.Context, path string, query url.Values, token string) (*Envelope, error) {
	return c.execute(ctx, "GET "+path, func(ctx context.Context) (*Envelope, error) {
		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		c.setCommonHeaders(ctx, req, token)
		return c.do(req)
	})
}

// PostJSON issues a POST request with a JSON body and decodes the envelope.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, token string) (*Envelope, error) {
	return c.execute(ctx, "POST "+path, func(ctx context.Context) (*Envelope, error) {
		var bodyReader io.Reader
		if body != nil {
			jsonData, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewBuffer(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.New().String())
		c.setCommonHeaders(ctx, req, token)
		return c.do(req)
	})
}

// FilePart describes the binary part of a multipart upload.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     io.Reader
}

// PostMultipart issues a POST request with a multipart body consisting of
// the given form fields plus one binary file part.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, file FilePart, token string) (*Envelope, error) {
	return c.execute(ctx, "POST "+path, func(ctx context.Context) (*Envelope, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		for key, value := range fields {
			if err := writer.WriteField(key, value); err != nil {
				return nil, fmt.Errorf("failed to write form field %q: %w", key, err)
			}
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.FieldName, file.FileName))
		if file.ContentType != "" {
			header.Set("Content-Type", file.ContentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, fmt.Errorf("failed to copy file content: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Idempotency-Key", uuid.New().String())
		c.setCommonHeaders(ctx, req, token)
		return c.do(req)
	})
}

// Delete issues a DELETE request and decodes the envelope.
func (c *Client) Delete(ctx context.Context, path string, token string) (*Envelope, error) {
	return c.execute(ctx, "DELETE "+path, func(ctx context.Context) (*Envelope, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Idempotency-Key", uuid.New().String())
		c.setCommonHeaders(ctx, req, token)
		return c.do(req)
	})
}

func (c *Client) execute(ctx context.Context, name string, call func(ctx context.Context) (*Envelope, error)) (*Envelope, error) {
	op := func(ctx context.Context) (interface{}, error) {
		return call(ctx)
	}

	if c.breaker != nil {
		inner := op
		op = func(ctx context.Context) (interface{}, error) {
			return c.breaker.Execute(ctx, inner)
		}
	}

	var result interface{}
	var err error
	if c.retryConfig != nil {
		result, err = resilience.RetryWithName(ctx, *c.retryConfig, op, name)
	} else {
		result, err = op(ctx)
	}
	if err != nil {
		return nil, err
	}

	return result.(*Envelope), nil
}

func (c *Client) do(req *http.Request) (*Envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    messageFromBody(respBody),
			Body:       string(respBody),
		}
	}

	env := &Envelope{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, env); err != nil {
			// Not all endpoints wrap their payload; treat an undecodable
			// 2xx body as a bare payload.
			env = &Envelope{Data: respBody}
		}
	}

	return env, nil
}

func (c *Client) setCommonHeaders(ctx context.Context, req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	}
}

// messageFromBody pulls a human-readable message out of an error response
// body when the upstream bothered to include one.
func messageFromBody(body []byte) string {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}

// HTTPError represents a non-2xx upstream response
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RemoteMessage extracts the remote-provided message from an error, when
// the error chain carries one.
func RemoteMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return ""
}

// isHTTPRetryable determines if an error is worth retrying
func isHTTPRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return resilience.IsRetryableHTTPStatus(httpErr.StatusCode)
	}

	// Network errors and timeouts are retryable by default
	return true
}
