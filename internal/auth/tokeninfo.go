package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iftv-ott/iftv_client/internal/logging"
)

// TokenInfo describes a bearer token for the token console. Claims are read
// without signature verification and are informational only; nothing in the
// lifecycle trusts them.
type TokenInfo struct {
	Length    int            `json:"length"`
	Prefix    string         `json:"prefix"`
	Masked    string         `json:"masked"`
	IsJWT     bool           `json:"is_jwt"`
	Subject   string         `json:"subject,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
}

// DescribeToken inspects token. Opaque tokens only get length and prefix.
func DescribeToken(token string) TokenInfo {
	info := TokenInfo{
		Length: len(token),
		Masked: logging.MaskToken(token),
	}
	if len(token) > 10 {
		info.Prefix = token[:10]
	} else {
		info.Prefix = token
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return info
	}
	info.IsJWT = true
	info.Claims = claims
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.UTC()
		info.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.UTC()
		info.ExpiresAt = &t
	}
	return info
}
