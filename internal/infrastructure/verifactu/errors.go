package verifactu

import (
	"encoding/json"
	"fmt"
)

// Error codes raised by the client itself, as opposed to codes relayed from
// the remote API
const (
	CodeTimeout         = "TIMEOUT"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeParseError      = "PARSE_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
)

// FieldError is a field-level detail attached to a remote error response
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// APIError is the terminal outcome of a failed request. It carries the full
// diagnostic context: the remote code and HTTP status, whether the failure
// class is retryable, the raw response body, and how many attempts were
// spent before giving up.
type APIError struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	HTTPStatus int             `json:"http_status,omitempty"`
	Retryable  bool            `json:"retryable"`
	Details    []FieldError    `json:"details,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := fmt.Sprintf("verifactu: %s: %s", e.Code, e.Message)
	if e.HTTPStatus > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.HTTPStatus)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	return msg
}
