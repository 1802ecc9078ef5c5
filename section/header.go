package section

import (
	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
)

// Header is the fixed-size record at the start of every encoded buffer.
type Header struct {
	// Flag holds the magic number, shuffle and endianness bits.
	Flag Flag // byte offset 0-1
	// DataType is the element type of the encoded array.
	DataType format.DataType // byte offset 2
	// Placement is the policy that produced the segment layout.
	Placement format.PlacementPolicy // byte offset 3
	// NumDims is the number of entries in the dimension table.
	NumDims uint16 // byte offset 4-5
	// SegmentCount is the number of entries in the segment table.
	SegmentCount uint16 // byte offset 6-7
	// Epoch identifies the tier store generation the segments were written in.
	Epoch uint64 // byte offset 8-15
	// ElementCount is the number of array elements.
	ElementCount uint64 // byte offset 16-23
	// RawSize is the byte length of the original array.
	RawSize uint64 // byte offset 24-31
	// Checksum is the xxHash64 of header bytes 0-31, the dimension table and
	// the segment table.
	Checksum uint64 // byte offset 32-39
}

// NewHeader creates a header with a default flag for the given type and placement.
func NewHeader(typ format.DataType, placement format.PlacementPolicy) Header {
	return Header{
		Flag:      NewFlag(),
		DataType:  typ,
		Placement: placement,
	}
}

// Parse parses the header from exactly HeaderSize bytes.
//
// Returns errs.ErrInvalidHeaderSize if data has the wrong length, or a flag
// validation error.
func (h *Header) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	h.Flag.Options = uint16(data[0]) | uint16(data[1])<<8
	if err := h.Flag.Validate(); err != nil {
		return err
	}

	engine := h.Flag.GetEndianEngine()
	h.DataType = format.DataType(data[2])
	h.Placement = format.PlacementPolicy(data[3])
	h.NumDims = engine.Uint16(data[4:6])
	h.SegmentCount = engine.Uint16(data[6:8])
	h.Epoch = engine.Uint64(data[8:16])
	h.ElementCount = engine.Uint64(data[16:24])
	h.RawSize = engine.Uint64(data[24:32])
	h.Checksum = engine.Uint64(data[32:40])

	return nil
}

// Bytes serializes the header into a new HeaderSize byte slice.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.putTo(b)

	return b
}

// putTo writes the header into b, which must hold at least HeaderSize bytes.
func (h *Header) putTo(b []byte) {
	engine := h.Flag.GetEndianEngine()

	b[0] = byte(h.Flag.Options)
	b[1] = byte(h.Flag.Options >> 8)
	b[2] = byte(h.DataType)
	b[3] = byte(h.Placement)
	engine.PutUint16(b[4:6], h.NumDims)
	engine.PutUint16(b[6:8], h.SegmentCount)
	engine.PutUint64(b[8:16], h.Epoch)
	engine.PutUint64(b[16:24], h.ElementCount)
	engine.PutUint64(b[24:32], h.RawSize)
	engine.PutUint64(b[32:40], h.Checksum)
}

// ParseHeader parses a Header from the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errs.ErrInvalidHeaderSize
	}

	h := Header{}
	if err := h.Parse(data[:HeaderSize]); err != nil {
		return Header{}, err
	}

	return h, nil
}
