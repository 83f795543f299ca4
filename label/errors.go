package label

import "errors"

// The error kinds of the annotation model. Every failure wraps one of
// these; callers classify with errors.Is. Messages carry the offending
// value and, for bounds failures, the valid bound.
var (
	// ErrValidation reports an invalid argument: a negative frame, a
	// range outside a space's bounds, coordinates of the wrong shape, or
	// a placement kind the space does not support.
	ErrValidation = errors.New("invalid label operation")

	// ErrConflict reports an overlap without a permitting policy, a
	// duplicate classification for a feature, or re-adding an already
	// attached instance.
	ErrConflict = errors.New("conflicting label state")

	// ErrNotFound reports an operation on an instance, space, or
	// attribute that was never placed or registered.
	ErrNotFound = errors.New("label entity not found")

	// ErrConsistency reports a serialization-time invariant failure:
	// bitmask dimensions that disagree with the media, or a feature hash
	// that no longer resolves in the ontology.
	ErrConsistency = errors.New("label consistency violation")

	// ErrFormat reports a malformed wire label dictionary.
	ErrFormat = errors.New("malformed label data")
)
