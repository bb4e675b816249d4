// Package common defines sentinel errors shared by the catalog API layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// Client input errors: missing params, malformed bodies, bad sizes.
	ErrInvalidArgument = errors.New("invalid argument")

	// Auth errors. ErrUnauthorized means no credentials were supplied,
	// ErrInvalidToken means the supplied token failed verification.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)
