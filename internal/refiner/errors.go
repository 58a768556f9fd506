package refiner

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotConfigured is returned by New when endpoint or model is missing.
	ErrNotConfigured = errors.New("llm_not_configured")
	// ErrCooldown is returned while the refiner backs off after a failure.
	ErrCooldown = errors.New("llm_cooldown")
	// ErrInvalidResponse is returned when responses arrived but no line
	// survived validation.
	ErrInvalidResponse = errors.New("llm_invalid_response")
)

// HTTPError is a non-200 reply from the completion endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm_http_error: %d %s", e.StatusCode, e.Body)
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
