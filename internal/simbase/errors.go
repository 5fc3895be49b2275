package simbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the remote rejected the configured API key.
	ErrAuth = errors.New("simbase: invalid api key")

	// ErrTooManyPages means cursor pagination did not terminate within the
	// configured ceiling.
	ErrTooManyPages = errors.New("simbase: page ceiling exceeded")
)

// APIError is a response-level failure from the remote. Op and ICCID are
// attached by the client so command issuers see which call failed for whom.
type APIError struct {
	Op     string
	ICCID  string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("simbase: %s failed: status %d", e.Op, e.Status)
	if e.ICCID != "" {
		msg += " (iccid " + e.ICCID + ")"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// isTransient reports whether a failure is worth retrying: timeouts,
// connection errors, 429 and 5xx. Auth failures, other 4xx and context
// cancellation are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusTooManyRequests || ae.Status >= 500
	}
	// Anything else came from the transport.
	return true
}

// isUnavailable matches the optional-endpoint case: the account tier does
// not expose the resource at all.
func isUnavailable(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) &&
		(ae.Status == http.StatusForbidden || ae.Status == http.StatusNotFound)
}
