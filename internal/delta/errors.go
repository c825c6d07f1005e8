package delta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned when a symbol is absent from a result set that
// was otherwise fetched successfully.
var ErrNotFound = errors.New("symbol not found in result set")

// apiErrorBody is the error payload inside a failed envelope
type apiErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// APIError represents a failure reported by the exchange, either as a
// non-2xx status or as success=false inside an HTTP 200 envelope.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("exchange API error (HTTP %d): %s", e.HTTPStatus, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("exchange API error %s (HTTP %d)", e.Code, e.HTTPStatus)
	}
	return fmt.Sprintf("exchange API error %s (HTTP %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// IsRetryable determines if this error should trigger a retry
func (e *APIError) IsRetryable() bool {
	if e.Code == "rate_limit_exceeded" || e.Code == "expired_signature" {
		return true
	}
	switch e.HTTPStatus {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsAuthError checks if this is an authentication error
func (e *APIError) IsAuthError() bool {
	authCodes := map[string]bool{
		"invalid_api_key":   true,
		"unauthorized":      true,
		"signature_invalid": true,
	}
	return authCodes[e.Code] || e.HTTPStatus == http.StatusUnauthorized
}

// parseAPIError builds an APIError from a response body. Used both for
// non-2xx statuses and for success=false envelopes.
func parseAPIError(status int, body []byte) error {
	var envelope struct {
		Error *apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return &APIError{
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
			HTTPStatus: status,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "empty response"
	}
	return &APIError{Message: msg, HTTPStatus: status}
}

// IsRetryableError determines if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are never retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	return isNetworkError(err)
}

// isNetworkError checks if an error is a transport-level failure
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection refused",
		"no such host",
		"timeout",
		"network unreachable",
		"connection reset",
	}
	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}
	return false
}

// errorWithContext wraps errors with operation context for better debugging
func errorWithContext(err error, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
