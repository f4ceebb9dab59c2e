package stt

import (
	"errors"
	"fmt"

	"github.com/teslashibe/voicegate/internal/httpc"
)

// Sentinel errors.
var (
	ErrNoAPIKey  = errors.New("stt: API key required")
	ErrNoBaseURL = errors.New("stt: service URL required")
	ErrNoModel   = errors.New("stt: model required")
	ErrEmptyClip = errors.New("stt: empty audio clip")
)

// APIError is a non-2xx answer from a recognition backend.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized reports an authentication failure.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with provider context, turning HTTP status errors into *APIError.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var se *httpc.StatusError
	if errors.As(err, &se) {
		return &APIError{StatusCode: se.StatusCode, Message: se.Body, Provider: provider}
	}
	return &ProviderError{Provider: provider, Err: err}
}
