package session

import (
	"time"

	"github.com/iftv-ott/iftv_client/internal/identity"
)

// Session is the authenticated identity bound to one login.
type Session struct {
	MobileNumber string           `json:"mobileNumber"`
	AuthToken    string           `json:"authToken"`
	LoginTime    time.Time        `json:"loginTime"`
	User         identity.Profile `json:"user,omitempty"`
}

// LoginTimeISO renders LoginTime as an RFC 3339 timestamp in UTC.
func (s Session) LoginTimeISO() string {
	return s.LoginTime.UTC().Format(time.RFC3339Nano)
}

// BaseProfile is the minimal user record available without a profile fetch.
func (s Session) BaseProfile() identity.Profile {
	return identity.Profile{
		"mobileNumber": s.MobileNumber,
		"token":        s.AuthToken,
		"loginTime":    s.LoginTimeISO(),
	}
}

func (s Session) clone() Session {
	s.User = s.User.Clone()
	return s
}
