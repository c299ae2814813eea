package domain

import "errors"

var (
	ErrInvalidMessage        = errors.New("invalid message")
	ErrInvalidIdentity       = errors.New("invalid identity")
	ErrStoreUnavailable      = errors.New("message store unavailable")
	ErrIdentityNotRegistered = errors.New("identity not registered")
	ErrRateLimited           = errors.New("rate limited")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrInvalidCursor         = errors.New("invalid cursor")
	ErrInvalidToken          = errors.New("invalid token")
)
