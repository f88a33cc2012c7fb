package verifactu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoo/backend/internal/domain/invoice"
)

// maxResponseSize caps how much of a remote response is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client is the resilient HTTP client for the VeriFactu remote API. Every
// logical request gets a stable request id, up to MaxRetries attempts with a
// per-attempt timeout enforced by context cancellation, and exponential
// backoff between retryable failures. 4xx responses are terminal; 5xx, 429,
// and timeouts are retried.
type Client struct {
	config     *Config
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewClient creates a client for the given tenant config
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:  config,
		baseURL: config.baseURL(),
		// the per-attempt deadline is enforced via context, not the
		// transport, so a cancelled attempt tears down the connection
		httpClient: &http.Client{},
		logger:     logger,
		sleep:      sleepCtx,
	}, nil
}

// CreateInvoice submits a new invoice to the remote ledger
func (c *Client) CreateInvoice(ctx context.Context, doc *invoice.Document) (*SubmissionResponse, error) {
	payload := *doc
	payload.IssuerTaxID = c.config.CompanyTaxID

	c.logger.Info("creating invoice",
		zap.String("serie", doc.Series),
		zap.String("numero", doc.Number),
		zap.String("total", doc.Total.StringFixed(2)))

	return c.submit(ctx, http.MethodPost, "/verifactu/create", &payload)
}

// ModifyInvoice resubmits an existing invoice with changed content
func (c *Client) ModifyInvoice(ctx context.Context, doc *invoice.Document) (*SubmissionResponse, error) {
	payload := *doc
	payload.IssuerTaxID = c.config.CompanyTaxID

	c.logger.Info("modifying invoice",
		zap.String("serie", doc.Series),
		zap.String("numero", doc.Number))

	return c.submit(ctx, http.MethodPost, "/verifactu/modify", &payload)
}

// CancelInvoice voids an invoice in the remote ledger
func (c *Client) CancelInvoice(ctx context.Context, series, number string) (*SubmissionResponse, error) {
	if series == "" || number == "" {
		return nil, &APIError{
			Code:    CodeInvalidResponse,
			Message: "series and number are required for cancellation",
		}
	}

	c.logger.Info("cancelling invoice",
		zap.String("serie", series),
		zap.String("numero", number))

	return c.submit(ctx, http.MethodPost, "/verifactu/cancel", cancelRequest{
		IssuerTaxID: c.config.CompanyTaxID,
		Series:      series,
		Number:      number,
	})
}

// GetStatus queries the current submission status of an invoice
func (c *Client) GetStatus(ctx context.Context, series, number string) (*SubmissionResponse, error) {
	query := url.Values{}
	query.Set("nif", c.config.CompanyTaxID)
	query.Set("serie", series)
	query.Set("numero", number)

	return c.submit(ctx, http.MethodGet, "/verifactu/status?"+query.Encode(), nil)
}

// submit runs one logical request through the retry loop and decodes the
// final response
func (c *Client) submit(ctx context.Context, method, path string, payload any) (*SubmissionResponse, error) {
	body, err := c.execute(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	var response SubmissionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &APIError{
			Code:      CodeInvalidResponse,
			Message:   fmt.Sprintf("response does not match the expected schema: %v", err),
			Raw:       body,
			Retryable: false,
		}
	}
	return &response, nil
}

// execute performs up to MaxRetries attempts of one logical request. The
// request id stays stable across attempts so the remote side can correlate
// them; the last error is returned annotated with the attempt count.
func (c *Client) execute(ctx context.Context, method, path string, payload any) ([]byte, error) {
	requestID := uuid.New().String()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("verifactu: failed to encode payload: %w", err)
		}
	}

	var lastErr *APIError
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		respBody, apiErr := c.attempt(ctx, method, path, body, requestID)
		if apiErr == nil {
			c.logger.Debug("request succeeded",
				zap.String("request_id", requestID),
				zap.String("path", path),
				zap.Int("attempt", attempt))
			return respBody, nil
		}

		apiErr.RequestID = requestID
		apiErr.Attempts = attempt
		lastErr = apiErr

		if !apiErr.Retryable {
			c.logger.Warn("request failed terminally",
				zap.String("request_id", requestID),
				zap.String("path", path),
				zap.String("code", apiErr.Code),
				zap.Int("http_status", apiErr.HTTPStatus))
			return nil, apiErr
		}

		c.logger.Warn("request attempt failed",
			zap.String("request_id", requestID),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.config.MaxRetries),
			zap.String("code", apiErr.Code))

		if attempt < c.config.MaxRetries {
			delay := c.config.RetryDelay * (1 << (attempt - 1))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Error("request failed after all attempts",
		zap.String("request_id", requestID),
		zap.String("path", path),
		zap.Int("attempts", lastErr.Attempts))
	return nil, lastErr
}

// attempt performs a single HTTP exchange with its own deadline
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, requestID string) ([]byte, *APIError) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &APIError{Code: CodeNetworkError, Message: err.Error()}
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", "invoo-backend/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return nil, &APIError{
				Code:      CodeTimeout,
				Message:   fmt.Sprintf("request timed out after %s", c.config.Timeout),
				Retryable: true,
			}
		}
		return nil, &APIError{
			Code:      CodeNetworkError,
			Message:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &APIError{
			Code:      CodeNetworkError,
			Message:   fmt.Sprintf("failed to read response: %v", err),
			Retryable: true,
		}
	}

	// a response that is not a JSON object is never trusted, whatever the
	// status code says
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &probe); err != nil {
		if resp.StatusCode >= 500 {
			return nil, &APIError{
				Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message:    fmt.Sprintf("HTTP %d with unparseable body", resp.StatusCode),
				HTTPStatus: resp.StatusCode,
				Raw:        respBody,
				Retryable:  true,
			}
		}
		return nil, &APIError{
			Code:       CodeParseError,
			Message:    fmt.Sprintf("invalid JSON response: %s", truncate(respBody, 200)),
			HTTPStatus: resp.StatusCode,
			Raw:        respBody,
			Retryable:  false,
		}
	}

	if resp.StatusCode >= 400 {
		var remote struct {
			Error   string       `json:"error"`
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		}
		_ = json.Unmarshal(respBody, &remote)

		code := remote.Error
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		message := remote.Message
		if message == "" {
			message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}

		return nil, &APIError{
			Code:       code,
			Message:    message,
			HTTPStatus: resp.StatusCode,
			Details:    remote.Details,
			Raw:        respBody,
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
