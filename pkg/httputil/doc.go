// Package httputil provides helpers for outgoing HTTP calls.
//
// # Retry
//
// [Retry] re-runs an operation with exponential backoff, but only for
// failures wrapped in [RetryableError]:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    defer resp.Body.Close()
//	    return httputil.CheckResponse(resp)
//	})
//
// [CheckResponse] classifies a response: 2xx is success, 429 and 5xx are
// retryable [StatusError] values, and everything else is a permanent
// [StatusError].
package httputil
