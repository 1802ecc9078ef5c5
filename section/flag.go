package section

import (
	"github.com/arloliu/sirius/endian"
	"github.com/arloliu/sirius/errs"
)

// Flag is the packed options field at the start of the metadata header.
//
// Bit 0 is the byte shuffle flag, bit 1 the endianness of the remaining
// header fields (0 little, 1 big), bits 2-3 are reserved and bits 4-15 hold
// the magic number. The field itself is always stored little-endian.
type Flag struct {
	Options uint16
}

// NewFlag creates a little-endian, unshuffled Flag carrying the v1 magic.
func NewFlag() Flag {
	return Flag{Options: MagicTieredV1Opt}
}

// HasShuffle reports whether segments were byte shuffled before compression.
func (f Flag) HasShuffle() bool {
	return f.Options&ShuffleMask != 0
}

// SetShuffle sets or clears the shuffle bit.
func (f *Flag) SetShuffle(enabled bool) {
	if enabled {
		f.Options |= ShuffleMask
	} else {
		f.Options &^= ShuffleMask
	}
}

// IsLittleEndian reports whether the header fields are little-endian.
func (f Flag) IsLittleEndian() bool {
	return f.Options&EndiannessMask == 0
}

// WithLittleEndian selects little-endian header fields.
func (f *Flag) WithLittleEndian() {
	f.Options &^= EndiannessMask
}

// WithBigEndian selects big-endian header fields.
func (f *Flag) WithBigEndian() {
	f.Options |= EndiannessMask
}

// GetMagicNumber returns the magic number bits.
func (f Flag) GetMagicNumber() uint16 {
	return f.Options & MagicNumberMask
}

// Validate checks the magic number and reserved bits.
func (f Flag) Validate() error {
	if f.GetMagicNumber() != MagicTieredV1Opt {
		return errs.ErrInvalidMagicNumber
	}
	if f.Options&ReservedBitsMask != 0 {
		return errs.ErrInvalidHeaderFlags
	}

	return nil
}

// GetEndianEngine returns the engine for the header byte order.
func (f Flag) GetEndianEngine() endian.EndianEngine {
	if f.IsLittleEndian() {
		return endian.GetLittleEndianEngine()
	}

	return endian.GetBigEndianEngine()
}
