// Package jwtx decodes the expiry instant out of opaque bearer credentials.
//
// The client never verifies token signatures (that is the user-center's job) and
// never reads any claim other than "exp". Everything else about the credential is
// treated as opaque bytes.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed reports a credential that could not be parsed as a JWT.
	// Callers treat this the same as an expired credential.
	ErrMalformed = errors.New("jwtx: malformed credential")

	// ErrNoExpiry reports a credential with no "exp" claim.
	ErrNoExpiry = errors.New("jwtx: credential has no expiry claim")
)

// DecodeExpiry extracts the expiry instant from a bearer credential without
// verifying its signature. It never panics on garbage input; any credential that
// cannot be decoded yields ErrMalformed so callers fail safe toward logged-out.
func DecodeExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, ErrMalformed
	}

	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, ErrMalformed
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, ErrMalformed
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}

	return exp.Time, nil
}

// ExpiredAt reports whether a credential is expired at the given instant.
// Malformed credentials and credentials without an expiry count as expired.
func ExpiredAt(token string, now time.Time) bool {
	exp, err := DecodeExpiry(token)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}
