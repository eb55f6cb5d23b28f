package esim

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient wraps failures worth retrying: network errors, timeouts,
	// HTTP 5xx/429 and anti-bot soft-block redirects.
	ErrTransient = errors.New("transient upstream error")

	// ErrSoftBlocked marks a redirect that is neither to a login nor to an
	// error page. It is always wrapped together with ErrTransient.
	ErrSoftBlocked = errors.New("soft-blocked by upstream")

	// ErrMalformedResponse means the body could not be decoded or failed validation
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrAuthRequired means upstream redirected to its login page
	ErrAuthRequired = errors.New("upstream requires authentication")

	// ErrBlocked means upstream redirected to its error page
	ErrBlocked = errors.New("blocked by upstream")
)

// HTTPStatusError is a non-retryable, non-redirect HTTP failure (4xx)
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// ExhaustedRetriesError is returned once every attempt for URL has failed
type ExhaustedRetriesError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("giving up on %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}

// DataUnavailableError reports that upstream never produced a usable body
// for a battle (RoundID == 0) or one of its rounds.
type DataUnavailableError struct {
	BattleID uint64
	RoundID  uint16
	Err      error
}

func (e *DataUnavailableError) Error() string {
	if e.RoundID == 0 {
		return fmt.Sprintf("data unavailable for battle %d: %v", e.BattleID, e.Err)
	}
	return fmt.Sprintf("data unavailable for battle %d round %d: %v", e.BattleID, e.RoundID, e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a single failed attempt may be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformedResponse)
}
