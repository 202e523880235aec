// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserMessage is shown to the user whenever an address can't be resolved,
// regardless of the underlying cause.
const UserMessage = "Não foi possível localizar o endereço. Confira os dados ou informe o endereço manualmente."

// GeocodingError represents a failure talking to, or answered by, a provider.
type GeocodingError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
}

// ErrorType classifies geocoding errors.
type ErrorType int

const (
	// ErrorTypeUnknown unknown error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit rate limit reached.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded quota exceeded or key rejected.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout connection or request timeout.
	ErrorTypeTimeout
	// ErrorTypeNotFound provider reached, location not found.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest the caller supplied an incomplete address.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError network failure or 5xx.
	ErrorTypeNetworkError
	// ErrorTypeMalformedResponse undecodable body or out of range coordinates.
	ErrorTypeMalformedResponse
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeQuotaExceeded:
		return "quota_exceeded"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeNetworkError:
		return "network_error"
	case ErrorTypeMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

func (e *GeocodingError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

func errorType(err error) (ErrorType, bool) {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type, true
	}

	return ErrorTypeUnknown, false
}

// IsNotFoundError reports whether the provider was reached and had no match.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	t, _ := errorType(err)

	return t == ErrorTypeNotFound
}

// IsValidationError reports whether the address was rejected before any I/O.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}

	t, _ := errorType(err)

	return t == ErrorTypeInvalidRequest
}

// IsRateLimitError reports whether the provider throttled the request.
func IsRateLimitError(err error) bool {
	if t, ok := errorType(err); ok {
		return t == ErrorTypeRateLimit
	}

	// Detect by common error messages
	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether the provider quota was exceeded.
func IsQuotaExceededError(err error) bool {
	if t, ok := errorType(err); ok {
		return t == ErrorTypeQuotaExceeded
	}

	// Google Maps reports this in the status field
	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether the request timed out.
func IsTimeoutError(err error) bool {
	if t, ok := errorType(err); ok {
		return t == ErrorTypeTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// ClassifyHTTPError maps an HTTP status code into a geocoding error.
func ClassifyHTTPError(statusCode int, provider string) *GeocodingError {
	e := &GeocodingError{Provider: provider}

	switch statusCode {
	case http.StatusTooManyRequests: // 429
		e.Type, e.Message = ErrorTypeRateLimit, "rate limit reached"
	case http.StatusForbidden, http.StatusUnauthorized: // 403, 401
		e.Type, e.Message = ErrorTypeQuotaExceeded, "quota exceeded or access denied"
	case http.StatusBadRequest: // 400
		e.Type, e.Message = ErrorTypeInvalidRequest, "invalid request"
	case http.StatusNotFound: // 404
		e.Type, e.Message = ErrorTypeNotFound, "location not found"
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusInternalServerError:
		e.Type, e.Message = ErrorTypeNetworkError, fmt.Sprintf("service unavailable (status %d)", statusCode)
	default:
		e.Type, e.Message = ErrorTypeUnknown, fmt.Sprintf("HTTP error %d", statusCode)
	}

	return e
}

// classifyTransportError wraps an error returned by http.Client.Do.
func classifyTransportError(err error, provider string) *GeocodingError {
	if IsTimeoutError(err) {
		return &GeocodingError{Type: ErrorTypeTimeout, Provider: provider, Message: "request timed out", Err: err}
	}

	return &GeocodingError{Type: ErrorTypeNetworkError, Provider: provider, Message: "request failed", Err: err}
}

func notFound(provider, format string, args ...any) *GeocodingError {
	return &GeocodingError{
		Type:     ErrorTypeNotFound,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
	}
}

func malformed(provider string, err error) *GeocodingError {
	return &GeocodingError{
		Type:     ErrorTypeMalformedResponse,
		Provider: provider,
		Message:  "decoding response",
		Err:      err,
	}
}
