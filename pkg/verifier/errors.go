package verifier

import (
	"errors"
	"fmt"
	"time"

	"custody/pkg/types"
)

// ErrAuthenticationFailed is returned when a provider signature check
// rejects the proof.
var ErrAuthenticationFailed = errors.New("provider authentication failed")

// RateLimitError reports that a caller exceeded its challenge-request
// budget. The façade maps this to HTTP 429.
type RateLimitError struct {
	Limit  uint32
	Window string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.Limit, e.Window)
}

// InvalidInputError reports a structurally invalid argument. Never retried
// internally; the façade maps this to HTTP 400.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s - %s", e.Field, e.Reason)
}

// ChallengeNotFoundError reports a proof referencing an unknown or already
// evicted challenge.
type ChallengeNotFoundError struct {
	ChallengeID types.ChallengeID
}

func (e *ChallengeNotFoundError) Error() string {
	return fmt.Sprintf("challenge not found: %s", e.ChallengeID)
}

// CryptographicError reports a hard protocol violation: beacon collision,
// wrong-size proof data, a commitment missing at verify time, or an
// implausible proof timestamp. These are defects or attacks, not routine
// negative verdicts, and are surfaced as errors rather than (false, nil).
type CryptographicError struct {
	Reason string
}

func (e *CryptographicError) Error() string {
	return fmt.Sprintf("cryptographic verification failed: %s", e.Reason)
}

// NetworkError wraps a transport failure from the external content-fetch
// collaborator.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that an external fetch exceeded its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout exceeded: %dms", e.Timeout.Milliseconds())
}
