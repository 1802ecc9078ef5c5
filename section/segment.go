package section

import (
	"github.com/arloliu/sirius/endian"
	"github.com/arloliu/sirius/format"
)

// SegmentEntry locates one stored segment of an array inside a tier buffer.
//
// Segments are listed in original element order; concatenating their raw
// bytes reproduces the array.
type SegmentEntry struct {
	// Tier is the tier index the segment was appended to.
	//
	// Offset: 0, Size: 2 bytes
	Tier uint16

	// Compression is the codec applied to the segment.
	//
	// Offset: 2, Size: 1 byte. Bytes 3-7 are reserved and written as zero.
	Compression format.CompressionType

	// Offset is the byte offset of the stored segment in the tier buffer.
	//
	// Offset: 8, Size: 8 bytes
	Offset uint64

	// StoredLength is the byte length of the segment in the tier buffer.
	//
	// Offset: 16, Size: 8 bytes
	StoredLength uint64

	// RawLength is the byte length of the segment after decoding.
	//
	// Offset: 24, Size: 8 bytes
	RawLength uint64
}

// End returns the end offset (exclusive) of the stored segment.
func (e SegmentEntry) End() uint64 {
	return e.Offset + e.StoredLength
}

// Bytes returns the entry encoded with engine.
func (e *SegmentEntry) Bytes(engine endian.EndianEngine) []byte {
	var b [SegmentEntrySize]byte
	e.putTo(b[:], engine)

	return b[:]
}

func (e *SegmentEntry) putTo(b []byte, engine endian.EndianEngine) {
	engine.PutUint16(b[0:2], e.Tier)
	b[2] = byte(e.Compression)
	clear(b[3:8])
	engine.PutUint64(b[8:16], e.Offset)
	engine.PutUint64(b[16:24], e.StoredLength)
	engine.PutUint64(b[24:32], e.RawLength)
}

// Parse decodes the entry from exactly SegmentEntrySize bytes.
// It reports false if the reserved bytes are not zero.
func (e *SegmentEntry) Parse(b []byte, engine endian.EndianEngine) bool {
	if len(b) != SegmentEntrySize {
		return false
	}
	for _, r := range b[3:8] {
		if r != 0 {
			return false
		}
	}

	e.Tier = engine.Uint16(b[0:2])
	e.Compression = format.CompressionType(b[2])
	e.Offset = engine.Uint64(b[8:16])
	e.StoredLength = engine.Uint64(b[16:24])
	e.RawLength = engine.Uint64(b[24:32])

	return true
}
