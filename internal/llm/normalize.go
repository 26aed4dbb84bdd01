package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
)

// normalizeTransport maps connection-level failures. Caller cancellation is
// kept distinct from timeouts so the pipeline never retries an abort.
func normalizeTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fault.Cancelled(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &fault.NetworkError{Op: op, Timeout: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &fault.NetworkError{Op: op, Timeout: true, Err: err}
	}
	return &fault.NetworkError{Op: op, Err: err}
}

// normalizeStatus maps a non-2xx response, folding in a bounded body sample
// and the Retry-After hint for throttled calls.
func normalizeStatus(op string, resp *http.Response) error {
	sample, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	ne := &fault.NetworkError{Op: op, StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests {
		ne.RetryAfterMS = retryAfterToMS(resp.Header.Get("Retry-After"))
	}
	if len(sample) > 0 {
		ne.Err = errors.New(strings.TrimSpace(string(sample)))
	}
	return ne
}

func retryAfterToMS(retryAfter string) int64 {
	trimmed := strings.TrimSpace(retryAfter)
	if trimmed == "" {
		return 500
	}
	seconds, err := strconv.Atoi(trimmed)
	if err != nil || seconds < 1 {
		return 500
	}
	return int64(seconds) * 1000
}
