package dto

import "net/http"

// Error code constants

// General error codes
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeConflict   = "ERR_CONFLICT"
)

// Validation error codes
const (
	ErrCodeValidation = "ERR_VALIDATION"
)

// Invoice submission error codes
const (
	// ErrCodeChainConflict is used when an operation violates the invoice
	// chain (cancelled target, cycle, excessive chain length)
	ErrCodeChainConflict = "ERR_CHAIN_CONFLICT"
	// ErrCodeRemoteRejected is used when the tax authority API rejected the
	// submission with a terminal error
	ErrCodeRemoteRejected = "ERR_REMOTE_REJECTED"
	// ErrCodeRemoteUnavailable is used when the tax authority API could not
	// be reached after retries
	ErrCodeRemoteUnavailable = "ERR_REMOTE_UNAVAILABLE"
	// ErrCodeSafeguardRejected is used when a local safeguard refused to
	// admit the operation
	ErrCodeSafeguardRejected = "ERR_SAFEGUARD_REJECTED"
	// ErrCodeBadSignature is used when a webhook signature does not verify
	ErrCodeBadSignature = "ERR_BAD_SIGNATURE"
)

// statusByCode maps error codes to HTTP status codes
var statusByCode = map[string]int{
	ErrCodeInternal:          http.StatusInternalServerError,
	ErrCodeBadRequest:        http.StatusBadRequest,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeConflict:          http.StatusConflict,
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeChainConflict:     http.StatusConflict,
	ErrCodeRemoteRejected:    http.StatusUnprocessableEntity,
	ErrCodeRemoteUnavailable: http.StatusBadGateway,
	ErrCodeSafeguardRejected: http.StatusServiceUnavailable,
	ErrCodeBadSignature:      http.StatusUnauthorized,
}

// GetHTTPStatus returns the HTTP status code for an error code
func GetHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
