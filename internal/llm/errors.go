package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError is a failed call to a model provider. Code carries the
// HTTP status when the provider reported one.
type ProviderError struct {
	Provider string
	Message  string
	Code     int
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Retryable reports whether another provider might succeed where this one
// failed: auth problems, rate limits and server errors.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case 401, 403, 429, 500, 502, 503, 504, 529:
		return true
	}
	return transientMessage(e.Message)
}

// IsRetryable applies ProviderError.Retryable to any error, falling back to
// the message text for errors from outside a provider.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return transientMessage(err.Error())
}

func transientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"overloaded", "rate limit", "capacity", "timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
