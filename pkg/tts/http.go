package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// doWithRetry sends the request built by build, retrying 429 and 5xx
// responses and transport errors up to cfg.MaxRetries times. The body of
// a 2xx response is returned.
func doWithRetry(ctx context.Context, cfg *Config, logger *slog.Logger, provider string, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, WrapError(provider, err)
		}

		resp, err := cfg.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapError(provider, err)
			}
			lastErr = WrapError(provider, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := parseError(provider, resp.StatusCode, body)
			if apiErr.IsRetryable() {
				logger.Warn("retrying request",
					"attempt", attempt+1,
					"status", resp.StatusCode,
				)
				lastErr = apiErr
				continue
			}
			return nil, apiErr
		}
		if readErr != nil {
			return nil, WrapError(provider, readErr)
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = WrapError(provider, errors.New("no attempts made"))
	}
	return nil, lastErr
}

// parseError pulls a message out of the JSON error shapes the supported
// APIs use, falling back to the raw body.
func parseError(provider string, status int, body []byte) *APIError {
	var errResp struct {
		Error json.RawMessage `json:"error"`
		// ElevenLabs
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
		// Watson
		Code int `json:"code"`
	}

	apiErr := &APIError{StatusCode: status, Message: string(body), Provider: provider}
	if json.Unmarshal(body, &errResp) != nil {
		return apiErr
	}

	switch {
	case errResp.Detail.Message != "":
		apiErr.Message = errResp.Detail.Message
		apiErr.Code = errResp.Detail.Status
	case len(errResp.Error) > 0:
		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		var flat string
		if json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "" {
			apiErr.Message = nested.Message
			apiErr.Code = nested.Code
		} else if json.Unmarshal(errResp.Error, &flat) == nil && flat != "" {
			apiErr.Message = flat
		}
	}
	return apiErr
}
