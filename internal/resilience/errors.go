package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Failure classes recorded on failed locations.
const (
	ClassTransient = "transient"
	ClassPermanent = "permanent"
)

// RetryableError is implemented by errors that know whether another attempt
// could succeed.
type RetryableError interface {
	error
	Retryable() bool
}

// transportPatterns are substrings of wrapped transport errors that are
// worth another attempt.
var transportPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err could succeed on another attempt. An error
// in the chain implementing RetryableError decides; otherwise network
// timeouts and dropped connections count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transportPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status means the provider may
// answer differently next time.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyError labels an error for failure reports.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}
