package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response body is kept.
const maxErrorBody = 512

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string // truncated response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CheckResponse returns nil for a 2xx response. Otherwise it reads a
// prefix of the body and returns a [StatusError], wrapped in
// [RetryableError] when the status is temporary.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
	if err.Temporary() {
		return &RetryableError{Err: err}
	}
	return err
}
