// Package auth manages the access token used by the Graph backend.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoToken is returned when no cached token exists
var ErrNoToken = errors.New("no cached token")

// Token is a bearer token with its expiry
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CachedAt    time.Time `json:"cached_at"`
}

// Valid reports whether the token is still usable buffer from now
func (t Token) Valid(now time.Time, buffer time.Duration) bool {
	return t.AccessToken != "" && !t.ExpiresAt.IsZero() && t.ExpiresAt.After(now.Add(buffer))
}

// ExpiryFromJWT reads the exp claim of a JWT without verifying it
func ExpiryFromJWT(raw string) (time.Time, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("token is not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token payload: %w", err)
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token claims: %w", err)
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return time.Unix(claims.Exp, 0).UTC(), nil
}
