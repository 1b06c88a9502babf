package identity

import (
	"errors"
	"fmt"
)

// GenericFailureMessage is shown to users for remote and transport failures
// that carry no usable server message.
const GenericFailureMessage = "Network error or invalid response from server"

var (
	// ErrMissingToken is returned when a 2xx verify response has no token in
	// any recognized shape.
	ErrMissingToken = errors.New("no authentication token in response")
	// ErrMissingSessionID is returned by callers that require a session id
	// from a successful OTP request and did not get one.
	ErrMissingSessionID = errors.New("otp request succeeded but no session was issued")
)

// ValidationError reports caller input that failed format checks. No network
// call is made when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RemoteAuthError is a non-2xx gateway answer.
type RemoteAuthError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteAuthError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// MalformedResponseError is a gateway body that could not be decoded as JSON.
// Status is the HTTP status the body came with.
type MalformedResponseError struct {
	Op     string
	Status int
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: invalid JSON response from server (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NetworkError is a transport level failure such as an unreachable host.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// UserMessage maps err to the text a user should see. Validation and
// missing-token errors are verbatim, remote errors use the server message
// when one was supplied, everything else collapses to GenericFailureMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		validation *ValidationError
		remote     *RemoteAuthError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrMissingSessionID):
		return err.Error()
	case errors.As(err, &remote) && remote.Message != "":
		return remote.Message
	default:
		return GenericFailureMessage
	}
}
