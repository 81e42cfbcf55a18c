package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the upstream answered 404 or 410 for the subject.
	ErrNotFound = errors.New("upstream: not found")
	// ErrMalformedResponse means the upstream answered 2xx with a body that
	// is not a usable Bundle.
	ErrMalformedResponse = errors.New("upstream: malformed response")
)

// TransportError is an upstream call that failed below the FHIR layer:
// connection errors, timeouts, and non-2xx statuses other than 404/410 that
// survived the retry policy.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream: GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream: GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
