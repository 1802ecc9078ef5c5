package section

import (
	"fmt"
	"math"

	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/internal/hash"
)

// Metadata is the complete self-describing record returned by a compress
// call: the header, the array shape and the segment table.
type Metadata struct {
	Header   Header
	Dims     format.Dims
	Segments []SegmentEntry
}

// EncodedSize returns the byte length of a record with the given number of
// dimensions and segments.
func EncodedSize(numDims, numSegments int) int {
	return HeaderSize + numDims*DimEntrySize + numSegments*SegmentEntrySize
}

// Size returns the encoded byte length of m.
func (m *Metadata) Size() int {
	return EncodedSize(len(m.Dims), len(m.Segments))
}

// Tiers returns the tier index of every segment in order.
func (m *Metadata) Tiers() []int {
	tiers := make([]int, len(m.Segments))
	for i, seg := range m.Segments {
		tiers[i] = int(seg.Tier)
	}

	return tiers
}

// MarshalTo writes the record to the start of dst, filling in the count
// fields and the checksum, and returns the number of bytes written.
//
// Returns errs.ErrBufferTooSmall if dst cannot hold Size() bytes.
func (m *Metadata) MarshalTo(dst []byte) (int, error) {
	if len(m.Dims) > MaxDims || len(m.Segments) > MaxSegments {
		return 0, fmt.Errorf("%w: %d dims, %d segments", errs.ErrInvalidArray, len(m.Dims), len(m.Segments))
	}

	size := m.Size()
	if len(dst) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", errs.ErrBufferTooSmall, size, len(dst))
	}

	m.Header.NumDims = uint16(len(m.Dims))         //nolint: gosec
	m.Header.SegmentCount = uint16(len(m.Segments)) //nolint: gosec

	engine := m.Header.Flag.GetEndianEngine()
	out := dst[:size]

	pos := HeaderSize
	for _, d := range m.Dims {
		engine.PutUint64(out[pos:pos+DimEntrySize], d)
		pos += DimEntrySize
	}
	for i := range m.Segments {
		m.Segments[i].putTo(out[pos:pos+SegmentEntrySize], engine)
		pos += SegmentEntrySize
	}

	m.Header.Checksum = 0
	m.Header.putTo(out[:HeaderSize])
	m.Header.Checksum = hash.ChecksumParts(out[:ChecksumOffset], out[HeaderSize:])
	engine.PutUint64(out[ChecksumOffset:HeaderSize], m.Header.Checksum)

	return size, nil
}

// Bytes returns the record as a newly allocated slice.
func (m *Metadata) Bytes() []byte {
	b := make([]byte, m.Size())
	if _, err := m.MarshalTo(b); err != nil {
		return nil
	}

	return b
}

// ParseMetadata parses and validates a record from the start of data.
// Trailing bytes after the record are ignored.
//
// All failures satisfy errors.Is(err, errs.ErrMetadataCorrupt).
func ParseMetadata(data []byte) (Metadata, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Metadata{}, err
	}

	size := EncodedSize(int(h.NumDims), int(h.SegmentCount))
	if len(data) < size {
		return Metadata{}, fmt.Errorf("%w: record needs %d bytes, have %d", errs.ErrInvalidHeaderSize, size, len(data))
	}

	if sum := hash.ChecksumParts(data[:ChecksumOffset], data[HeaderSize:size]); sum != h.Checksum {
		return Metadata{}, errs.ErrChecksumMismatch
	}

	engine := h.Flag.GetEndianEngine()
	m := Metadata{
		Header:   h,
		Dims:     make(format.Dims, h.NumDims),
		Segments: make([]SegmentEntry, h.SegmentCount),
	}

	pos := HeaderSize
	for i := range m.Dims {
		m.Dims[i] = engine.Uint64(data[pos : pos+DimEntrySize])
		pos += DimEntrySize
	}
	for i := range m.Segments {
		if !m.Segments[i].Parse(data[pos:pos+SegmentEntrySize], engine) {
			return Metadata{}, fmt.Errorf("%w: segment %d has reserved bits set", errs.ErrInvalidHeaderFlags, i)
		}
		pos += SegmentEntrySize
	}

	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}

	return m, nil
}

// Validate checks that the header, shape and segment table agree.
func (m *Metadata) Validate() error {
	h := m.Header

	if !h.DataType.IsFixedWidth() {
		return fmt.Errorf("%w: data type %s", errs.ErrMetadataCorrupt, h.DataType)
	}
	if !h.Placement.IsValid() {
		return fmt.Errorf("%w: placement %d", errs.ErrMetadataCorrupt, h.Placement)
	}
	if len(m.Segments) == 0 {
		return fmt.Errorf("%w: no segments", errs.ErrMetadataCorrupt)
	}

	count, err := m.Dims.ElementCount()
	if err != nil || uint64(count) != h.ElementCount {
		return fmt.Errorf("%w: element count %d does not match dims %v", errs.ErrShapeMismatch, h.ElementCount, []uint64(m.Dims))
	}

	elemSize := uint64(h.DataType.Size()) //nolint: gosec
	if h.ElementCount > math.MaxUint64/elemSize || h.ElementCount*elemSize != h.RawSize {
		return fmt.Errorf("%w: raw size %d for %d %s elements", errs.ErrMetadataCorrupt, h.RawSize, h.ElementCount, h.DataType)
	}

	var total uint64
	for i, seg := range m.Segments {
		if !seg.Compression.IsValid() {
			return fmt.Errorf("%w: segment %d codec %d", errs.ErrMetadataCorrupt, i, seg.Compression)
		}
		if seg.End() < seg.Offset {
			return fmt.Errorf("%w: segment %d range overflows", errs.ErrMetadataCorrupt, i)
		}
		total += seg.RawLength
		if total < seg.RawLength {
			return fmt.Errorf("%w: segment lengths overflow", errs.ErrMetadataCorrupt)
		}
	}
	if total != h.RawSize {
		return fmt.Errorf("%w: segments cover %d of %d bytes", errs.ErrMetadataCorrupt, total, h.RawSize)
	}

	return nil
}
