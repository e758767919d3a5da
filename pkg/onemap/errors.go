package onemap

import (
	"errors"
	"fmt"

	"github.com/sells-group/resale-enrich/internal/resilience"
)

// ServiceError is a transport or HTTP failure talking to OneMap, surfaced
// once retries are exhausted. A missing match is not a ServiceError.
type ServiceError struct {
	Op         string
	StatusCode int
	Attempts   int
	Err        error

	// transport is set when no usable response arrived.
	transport bool
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("onemap: %s failed (status %d, %d attempt(s)): %v", e.Op, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("onemap: %s failed (%d attempt(s)): %v", e.Op, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether OneMap may answer differently next time: the
// request never got a response, or the status signals throttling or a
// server-side failure. Unparseable bodies and client errors are final.
func (e *ServiceError) Retryable() bool {
	return e.transport || resilience.RetryableStatus(e.StatusCode)
}

// IsServiceError reports whether err is (or wraps) a ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// retryable is the Geocode retry predicate.
func retryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return resilience.IsTransient(err)
}

// withAttempts stamps the attempt count on the ServiceError the retry loop
// gave up on, wrapping anything else (such as a cancelled context).
func withAttempts(op string, attempts int, err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		se.Attempts = attempts
		return se
	}
	return &ServiceError{Op: op, Attempts: attempts, Err: err}
}
