package llm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teslashibe/voicegate/internal/httpc"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when API key is required but missing.
	ErrNoAPIKey = errors.New("llm: API key required")

	// ErrNoBaseURL is returned when the provider has no endpoint.
	ErrNoBaseURL = errors.New("llm: base URL required")

	// ErrNoFlow is returned when Langflow has neither flow id nor endpoint.
	ErrNoFlow = errors.New("llm: langflow flow id required")

	// ErrEmptyResponse is returned when the backend answered with no text.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrUnrecognizedResponse is returned when no known response shape matched.
	ErrUnrecognizedResponse = errors.New("llm: unrecognized response shape")
)

// APIError represents an error response from a generation API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true for HTTP 401 or 403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with provider context. HTTP status failures become
// *APIError with the message pulled from common JSON error bodies.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var se *httpc.StatusError
	if errors.As(err, &se) {
		return parseError(provider, se)
	}
	return &ProviderError{Provider: provider, Err: err}
}

func parseError(provider string, se *httpc.StatusError) *APIError {
	apiErr := &APIError{StatusCode: se.StatusCode, Message: se.Body, Provider: provider}

	var body struct {
		// OpenAI
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
		// Dify
		Code    string `json:"code"`
		Message string `json:"message"`
		// Langflow / FastAPI
		Detail string `json:"detail"`
	}
	if json.Unmarshal([]byte(se.Body), &body) != nil {
		return apiErr
	}
	switch {
	case body.Error.Message != "":
		apiErr.Message, apiErr.Code = body.Error.Message, body.Error.Code
	case body.Message != "":
		apiErr.Message, apiErr.Code = body.Message, body.Code
	case body.Detail != "":
		apiErr.Message = body.Detail
	}
	return apiErr
}
