package identity

import (
	"regexp"
	"time"
)

var (
	mobilePattern = regexp.MustCompile(`^\d{10}$`)
	otpPattern    = regexp.MustCompile(`^\d{6}$`)
)

// Profile is a loosely typed user record as returned by the gateway. Unknown
// fields pass through untouched.
type Profile map[string]any

// Clone returns a deep copy of the profile. Nested JSON objects and arrays
// are copied too, so the clone shares no mutable state with p.
func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a deep copy of p overlaid with the fields of other. Fields in
// other win; nested objects are replaced, not merged.
func (p Profile) Merge(other Profile) Profile {
	out := make(Profile, len(p)+len(other))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Profile(t).Clone())
	case Profile:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// OtpSession is the one-shot handle issued by a successful OTP request.
type OtpSession struct {
	MobileNumber string
	SessionID    string
	CreatedAt    time.Time
}

// OtpResult is the normalized response of an OTP request.
type OtpResult struct {
	Success   bool
	Message   string
	SessionID string
}

// VerifyResult is the normalized response of an OTP verification. Token is
// never empty when err is nil.
type VerifyResult struct {
	Success bool
	Message string
	Token   string
	User    Profile
}

// ProfileResult is the normalized response of a profile fetch.
type ProfileResult struct {
	Success bool
	User    Profile
}

// RegisterResult is the normalized response of a registration call. Token is
// optional.
type RegisterResult struct {
	Success bool
	Message string
	User    Profile
	Token   string
}

// ValidateMobile checks that mobile is exactly ten ASCII digits.
func ValidateMobile(mobile string) error {
	if !mobilePattern.MatchString(mobile) {
		return &ValidationError{Field: "mobile", Message: "Please enter a valid 10-digit mobile number"}
	}
	return nil
}

// ValidateOtp checks that otp is exactly six ASCII digits.
func ValidateOtp(otp string) error {
	if !otpPattern.MatchString(otp) {
		return &ValidationError{Field: "otp", Message: "Please enter a valid 6-digit OTP"}
	}
	return nil
}
