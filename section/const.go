package section

import "math"

const (
	// Bit masks of the Options field.
	ShuffleMask      = 0x0001 // Mask for the byte shuffle bit (bit 0)
	EndiannessMask   = 0x0002 // Mask for the endianness bit (bit 1)
	ReservedBitsMask = 0x000C // Mask for reserved bits (bits 2-3), must be zero
	MagicNumberMask  = 0xFFF0 // Mask for the magic number (bits 4-15)

	// MagicTieredV1Opt identifies version 1 of the tiered metadata record.
	MagicTieredV1Opt = 0xC510
)

// Sizes of the fixed-width parts of the metadata record.
const (
	HeaderSize       = 40 // fixed header size in bytes
	DimEntrySize     = 8  // one uint64 extent per dimension
	SegmentEntrySize = 32 // fixed segment table entry size in bytes

	// ChecksumOffset is where the checksum field starts in the header.
	ChecksumOffset = 32

	MaxDims     = math.MaxUint16 // maximum number of dimensions
	MaxSegments = math.MaxUint16 // maximum number of segments, and so of tiers
)
