// Package auth acquires and caches the bearer token used on every upstream
// connection. One Cache is shared by all chat sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error marks a credential acquisition failure. Fatal to the session: the
// handler surfaces it before any streaming begins.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an auth failure.
func IsAuthError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// Credential is one issued token with the provider's advertised lifetime.
type Credential struct {
	Token     string
	ExpiresIn time.Duration
}

// Provider fetches a fresh credential from the external identity provider.
type Provider interface {
	Fetch(ctx context.Context) (Credential, error)
}

// TokenSource hands out a bearer token that is valid for at least the
// configured safety margin.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
