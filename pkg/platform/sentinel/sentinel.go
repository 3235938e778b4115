package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, registries and the hub
// session layer return these (optionally wrapped) so services can translate
// them into domain errors or drop the offending message.
//
// - ErrNotFound: record or pending callback does not exist
// - ErrExpired: pending callback outlived its TTL
// - ErrAlreadyUsed: callback or identity already consumed
// - ErrInvalidState: session or record in the wrong state for the operation
// - ErrUnavailable: backing store or peer temporarily unavailable
// - ErrBadSignature: attestation did not verify against the claimed key
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrBadSignature = errors.New("bad signature")
)
