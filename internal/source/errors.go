package source

import (
	"fmt"
)

// RequestError reports a source request that did not return 200 OK, or that
// failed before a response arrived (StatusCode 0).
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("source: request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("source: request to %s returned status code %d", e.URL, e.StatusCode)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ParseError reports a response body that could not be decoded.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("source: parse response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
