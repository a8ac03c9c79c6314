package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write lost against a concurrent writer
// - ErrExpired: pairing credential or session deadline has passed
// - ErrRevoked: pairing credential was cleared (session accepted or expired)
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrAlreadyDecided: session holds a different decision outcome
// - ErrUnavailable: backing service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrExpired        = errors.New("expired")
	ErrRevoked        = errors.New("revoked")
	ErrInvalidState   = errors.New("invalid state")
	ErrAlreadyDecided = errors.New("already decided")
	ErrUnavailable    = errors.New("unavailable")
)
