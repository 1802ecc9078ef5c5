// Package errs defines the sentinel errors returned by the sirius packages.
//
// Errors are wrapped with context via fmt.Errorf("%w: ...") at the point of
// failure, so callers should always match them with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Operator-level error taxonomy.
var (
	// ErrTypeUnsupported is returned when the element type is not accepted by the operator.
	ErrTypeUnsupported = errors.New("element type not supported")

	// ErrTierConfiguration is returned when the tier count is missing or invalid.
	ErrTierConfiguration = errors.New("invalid tier configuration")

	// ErrTierConfigurationConflict is returned when an active tier store is
	// initialized again with a different tier count.
	ErrTierConfigurationConflict = errors.New("tier configuration conflict")

	// ErrTierDataMissing is returned when encoded metadata references tier data
	// that no longer exists, e.g. after a reset.
	ErrTierDataMissing = errors.New("tier data missing")

	// ErrMetadataCorrupt is returned when an encoded buffer cannot be parsed into valid metadata.
	ErrMetadataCorrupt = errors.New("metadata corrupt")
)

// Auxiliary errors.
var (
	ErrBufferTooSmall       = errors.New("output buffer too small")
	ErrInvalidArray         = errors.New("invalid array")
	ErrTierCapacityExceeded = errors.New("tier capacity exceeded")
	ErrSegmentCorrupt       = errors.New("tier segment corrupt")
	ErrInvalidParameter     = errors.New("invalid operator parameter")
	ErrSnapshotCorrupt      = errors.New("tier snapshot corrupt")
)

// Header-level errors. All of them satisfy errors.Is(err, ErrMetadataCorrupt).
var (
	ErrInvalidHeaderSize  = fmt.Errorf("%w: invalid header size", ErrMetadataCorrupt)
	ErrInvalidHeaderFlags = fmt.Errorf("%w: invalid header flags", ErrMetadataCorrupt)
	ErrInvalidMagicNumber = fmt.Errorf("%w: invalid magic number", ErrMetadataCorrupt)
	ErrChecksumMismatch   = fmt.Errorf("%w: checksum mismatch", ErrMetadataCorrupt)
	ErrShapeMismatch      = fmt.Errorf("%w: shape mismatch", ErrMetadataCorrupt)
)
