package sheets

import (
	"fmt"
	"net/http"
)

// StatusError is returned for every non-2xx backend response. Only the
// numeric status class is interpreted by the retry layer; Body is kept for
// logging.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend: %s", e.Status)
}

// HTTPStatus implements listora.HTTPStatusCoder.
func (e StatusError) HTTPStatus() int {
	return e.Code
}

// IsRateLimited reports a 429 response.
func (e StatusError) IsRateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// IsServerError reports a 5xx response.
func (e StatusError) IsServerError() bool {
	return e.Code >= 500 && e.Code <= 599
}

// IsNotFound reports a 404 response (unknown table/range).
func (e StatusError) IsNotFound() bool {
	return e.Code == http.StatusNotFound
}

// IsForbidden reports a 401/403 response (bad or expired credentials).
func (e StatusError) IsForbidden() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// Retryable reports whether the status belongs to the transient class
// (rate limit or upstream server error).
func (e StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
