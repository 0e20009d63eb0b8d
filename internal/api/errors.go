package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go-bookfetch/internal/models"
)

// Guard-error codes recognized on 403 responses. Anything else on a 403 is
// treated as a plain authorization failure, not a policy guard.
const (
	CodePolicyRequiresRequest = "policy_requires_request"
	CodePolicyBlocked         = "policy_blocked"
)

// Sentinel errors for non-guard failures.
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

// GuardError is a policy-guard rejection: the server refused a download
// because the caller's access mode demands a request or blocks the item.
// It is produced exactly once, here at the HTTP boundary; downstream logic
// branches on RequiredMode and never re-parses the response.
type GuardError struct {
	Code         string
	RequiredMode models.RequestPolicyMode
	Message      string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("policy guard: %s (required mode %s)", e.Code, e.RequiredMode)
}

// TransientError marks a failure worth a user-initiated retry: network
// trouble, rate limits, 5xx.
type TransientError struct {
	Message string
	Cause   error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient: %s: %v", e.Message, e.Cause)
	}
	return "transient: " + e.Message
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError marks a failure retrying will not fix: auth, not-found, bad
// payloads.
type FatalError struct {
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Message, e.Cause)
	}
	return "fatal: " + e.Message
}

func (e *FatalError) Unwrap() error { return e.Cause }

// AsGuardError unwraps a policy-guard error if err carries one.
func AsGuardError(err error) (*GuardError, bool) {
	var ge *GuardError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// guardErrorBody is the wire shape of a 403 guard response.
type guardErrorBody struct {
	Code         string `json:"code"`
	RequiredMode string `json:"required_mode,omitempty"`
	Message      string `json:"message,omitempty"`
}

// classifyResponse converts a non-2xx response into exactly one of the
// closed error kinds. The response body is consumed.
func classifyResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		body = nil
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		var gb guardErrorBody
		if err := json.Unmarshal(body, &gb); err == nil {
			switch gb.Code {
			case CodePolicyRequiresRequest:
				mode := models.RequestPolicyMode(gb.RequiredMode)
				if !mode.RequiresRequest() {
					// A requires-request guard without a usable mode defaults
					// to a book-level request.
					mode = models.ModeRequestBook
				}
				return &GuardError{Code: gb.Code, RequiredMode: mode, Message: gb.Message}
			case CodePolicyBlocked:
				return &GuardError{Code: gb.Code, RequiredMode: models.ModeBlocked, Message: gb.Message}
			}
		}
		return &FatalError{Message: "forbidden", Cause: ErrUnauthorized}
	case http.StatusUnauthorized:
		return &FatalError{Message: "unauthorized", Cause: ErrUnauthorized}
	case http.StatusNotFound:
		return &FatalError{Message: "not found", Cause: ErrNotFound}
	case http.StatusTooManyRequests:
		return &TransientError{Message: "rate limited", Cause: ErrRateLimited}
	default:
		if resp.StatusCode >= 500 {
			return &TransientError{
				Message: fmt.Sprintf("server error (status %d)", resp.StatusCode),
				Cause:   ErrServerError,
			}
		}
		return &FatalError{Message: fmt.Sprintf("request failed with status %d", resp.StatusCode)}
	}
}
