package common

import "errors"

// Validation failures form a closed taxonomy so callers branch on kind with
// errors.Is instead of matching message strings. All of these are non-retryable:
// structurally malformed input will never succeed on redelivery.
var (
	// ErrMalformedObjectKey marks an object key that does not follow the
	// <prefix>/<platform>/<audience>/<type>/<file> layout. The key is the only
	// metadata channel the uploader has, so there is no recovery.
	ErrMalformedObjectKey = errors.New("object key does not match the expected layout")

	// ErrUnsupportedCalculateType marks a calculate-type path segment outside the
	// platform's supported set.
	ErrUnsupportedCalculateType = errors.New("unsupported calculate type")

	// ErrUnsupportedFile marks an object whose filename suffix the handler does not
	// process.
	ErrUnsupportedFile = errors.New("not a supported file")

	// ErrSegmentNotFound marks an audience label with no matching platform segment.
	ErrSegmentNotFound = errors.New("segment not found")
)
