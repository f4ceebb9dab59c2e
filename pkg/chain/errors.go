package chain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrEmptyChain      = errors.New("chain: no providers configured")
	ErrUnusable        = errors.New("chain: provider returned no usable value")
	ErrProviderTimeout = errors.New("chain: provider timed out")
)

// ProviderError records one provider's failure inside a dispatch.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ChainError is returned when every provider in a chain failed.
type ChainError struct {
	Step   string
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s chain: all providers failed", e.Step)
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%s chain: all %d providers failed: %s", e.Step, len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes every provider failure to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
