package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the token pair issued by the backend. ExpiresAt is unix seconds
// and may be absent; Expiry then falls back to the access token's exp claim.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Expiry returns when the access token expires, or the zero time when the
// session carries no usable expiry at all.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	// The backend did not say; the token itself usually does. The signature is
	// not checked here, only the server can do that.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// ExpiredAt reports whether the session is past its expiry at the given
// instant. Sessions without a known expiry never count as locally expired.
func (s *Session) ExpiredAt(now time.Time) bool {
	exp := s.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}
