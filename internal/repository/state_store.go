package repository

import (
	"context"
	"time"
)

// StateStore holds the short-lived secrets of a sign-in: the OAuth2 state
// issued by the authorize endpoint and the JTI of every live refresh token.
// Keys are namespaced by the caller ("oauth2_state:", "refresh_jti:").
type StateStore interface {
	// Set stores value under key. A zero ttl keeps the key until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Consume redeems key: the first caller gets the value and the key is
	// gone for everyone after. A missing or expired key yields nil, nil.
	Consume(ctx context.Context, key string) ([]byte, error)
	// Delete revokes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
