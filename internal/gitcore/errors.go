package gitcore

import "errors"

// Stable error taxonomy. Callers classify with errors.Is; every site that
// returns one of these wraps it with source context via fmt.Errorf and %w.
var (
	// ErrMalformedHeader indicates a loose object whose "<type> <size>\0"
	// frame could not be split.
	ErrMalformedHeader = errors.New("malformed object header")

	// ErrInvalidEncoding indicates object type bytes that are not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid header encoding")

	// ErrUnsupportedObjectType indicates an object type this reader does not
	// parse (including annotated tag objects).
	ErrUnsupportedObjectType = errors.New("unsupported object type")

	// ErrMalformedCommit indicates a commit body missing required headers,
	// an unparsable identity line, or an empty message.
	ErrMalformedCommit = errors.New("malformed commit")

	// ErrMalformedTree indicates a truncated or unframeable tree body.
	ErrMalformedTree = errors.New("malformed tree")

	// ErrMissingRequiredField indicates a required header absent from an
	// otherwise well-formed object.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrUnsupportedPackVersion indicates a pack index whose magic or
	// version is not index-v2.
	ErrUnsupportedPackVersion = errors.New("unsupported pack index version")

	// ErrObjectNotFound indicates a hash absent from both the loose
	// namespace and every pack.
	ErrObjectNotFound = errors.New("object not found")

	// ErrCorruptedData indicates structurally invalid on-disk data: a pack
	// index shorter than its fanout implies, a large-offset reference out
	// of range, or a delta base cycle.
	ErrCorruptedData = errors.New("corrupted data")

	// ErrInvalidDeltaHeader indicates an illegal delta opcode or a source
	// size exceeding the base buffer.
	ErrInvalidDeltaHeader = errors.New("invalid delta header")

	// ErrDeltaSizeMismatch indicates a resolved delta whose output length
	// differs from the declared target size.
	ErrDeltaSizeMismatch = errors.New("delta size mismatch")

	// ErrDeltaOutOfBounds indicates a copy span outside the base buffer or
	// an insert running past the end of the delta stream.
	ErrDeltaOutOfBounds = errors.New("delta out of bounds")

	// ErrDeltaChainTooDeep indicates a delta chain longer than the
	// configured limit.
	ErrDeltaChainTooDeep = errors.New("delta chain too deep")
)
