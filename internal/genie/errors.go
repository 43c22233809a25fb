package genie

import (
	"fmt"
	"time"
)

// APIError is a non-2xx response from the Genie service. The body is kept
// verbatim so the caller can show the service's own explanation.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genie API returned %d: %s", e.StatusCode, e.Body)
}

// TimeoutError means a poll exhausted its time budget before the message
// reached a terminal status. The message may still complete later; the
// caller can resume polling with the same identifiers.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("message did not complete within %s", e.Elapsed.Round(time.Second))
}

// MalformedResultError means a query result response did not have the
// expected statement_response structure. It is surfaced as a value so the
// caller can render "no data" instead of aborting the session.
type MalformedResultError struct {
	Reason string
}

func (e *MalformedResultError) Error() string {
	return "malformed query result: " + e.Reason
}
