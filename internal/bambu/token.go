package bambu

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the expiry from a vendor access token. Bambu tokens
// are JWTs, so a seeded token's lifetime can be recovered from its exp claim
// without signature verification. Returns the zero time when the token is
// not a parseable JWT or carries no expiry, which callers treat as
// "never known-expired".
func TokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
