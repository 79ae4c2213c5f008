// Package synerr names the sync engine's error taxonomy: IO, Gateway,
// Conflict, Admission, Invariant, and CorruptProjection. These are plain sentinel
// and wrapped errors built on the standard library's errors/fmt — a
// dedicated error-wrapping framework would be unjustified ceremony here,
// since nothing in the example corpus reaches for one either; every
// package in the corpus wraps errors with fmt.Errorf("%w", ...).
package synerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of the reconciler's recovery
// policy (per-file continue, propagate, or self-heal).
type Kind string

const (
	KindIO                Kind = "io"
	KindGateway            Kind = "gateway"
	KindConflict           Kind = "conflict"
	KindAdmission          Kind = "admission"
	KindInvariant          Kind = "invariant"
	KindCorruptProjection  Kind = "corrupt_projection"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// recovery policy without string-matching error messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err (or anything it wraps) is a synerr.Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// ErrNoRemote indicates the store has no usable git remote for pull/push.
var ErrNoRemote = errors.New("synerr: no remote configured")

// ErrAlreadyMerging indicates a merge is already in progress in the store
// working tree; both ErrNoRemote and ErrAlreadyMerging are recoverable
// Gateway errors per the error-handling design.
var ErrAlreadyMerging = errors.New("synerr: merge already in progress")
