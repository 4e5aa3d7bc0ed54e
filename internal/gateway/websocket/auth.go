package websocket

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrInvalidToken is returned for credentials that do not match.
var ErrInvalidToken = errors.New("invalid agent token")

// TokenValidator authenticates identify frames before a session binds to
// an agent id.
type TokenValidator interface {
	Validate(ctx context.Context, agentID, token string) error
}

// StaticTokenValidator accepts a single shared token, compared in
// constant time.
type StaticTokenValidator struct {
	Token string
}

// Validate implements TokenValidator.
func (v *StaticTokenValidator) Validate(_ context.Context, _ string, token string) error {
	if subtle.ConstantTimeCompare([]byte(v.Token), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
