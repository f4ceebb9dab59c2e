package tts

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoiceID is returned when the voice ID is missing.
	ErrNoVoiceID = errors.New("tts: voice ID required")

	// ErrNoBaseURL is returned when a self-hosted provider has no endpoint.
	ErrNoBaseURL = errors.New("tts: base URL required")

	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrEmptyAudio is returned when the backend answered without audio.
	ErrEmptyAudio = errors.New("tts: backend returned no audio")
)

// APIError is a non-2xx answer from a synthesis backend.
type APIError struct {
	// Provider identifies which backend answered.
	Provider string

	// StatusCode is the HTTP status, or the SDK's mapped status.
	StatusCode int

	// Code is the backend's error code, when it sends one.
	Code string

	// Message is the backend's error text or the raw body.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("tts %s: status %d: %s", e.Provider, e.StatusCode, msg)
}

// IsRateLimited reports a 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports a rejected credential.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRetryable reports throttling and server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.StatusCode >= http.StatusInternalServerError
}

// ProviderError tags a failure with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. API errors already carry the provider
// and are returned as they are; a nil err stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}
