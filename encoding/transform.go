package encoding

import (
	"fmt"

	"github.com/arloliu/sirius/compress"
	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/internal/pool"
)

func noCleanup() {}

// Transform is the reversible byte transform applied to one tier segment:
// an optional byte shuffle followed by a codec.
type Transform struct {
	Shuffle bool
	Codec   compress.Codec
}

// NewTransform creates a Transform using the built-in codec for ct.
func NewTransform(shuffle bool, ct format.CompressionType) (Transform, error) {
	codec, err := compress.GetCodec(ct)
	if err != nil {
		return Transform{}, fmt.Errorf("%w: %w", errs.ErrInvalidParameter, err)
	}

	return Transform{Shuffle: shuffle, Codec: codec}, nil
}

// Compression returns the codec type of the transform.
func (t Transform) Compression() format.CompressionType {
	if t.Codec == nil {
		return format.CompressionNone
	}

	return t.Codec.Type()
}

// Encode returns the stored form of raw.
//
// The result may alias raw or pooled scratch memory and is only valid until
// the returned cleanup function is called. cleanup is never nil.
func (t Transform) Encode(raw []byte, elemSize int) ([]byte, func(), error) {
	if len(raw) == 0 {
		return nil, noCleanup, nil
	}

	input := raw
	cleanup := noCleanup
	if t.Shuffle && elemSize > 1 {
		var scratch []byte
		scratch, cleanup = pool.GetScratch(len(raw))
		Shuffle(scratch, raw, elemSize)
		input = scratch
	}

	if t.Codec == nil {
		return input, cleanup, nil
	}

	out, err := t.Codec.Compress(input)
	if err != nil {
		cleanup()
		return nil, noCleanup, fmt.Errorf("%s compress: %w", t.Codec.Type(), err)
	}

	return out, cleanup, nil
}

// DecodeInto reverses Encode, writing exactly len(dst) raw bytes into dst.
//
// Returns errs.ErrSegmentCorrupt if stored does not decode to len(dst) bytes.
func (t Transform) DecodeInto(dst, stored []byte, elemSize int) error {
	rawLen := len(dst)
	if rawLen == 0 {
		if len(stored) != 0 {
			return fmt.Errorf("%w: %d stored bytes for an empty segment", errs.ErrSegmentCorrupt, len(stored))
		}

		return nil
	}

	decoded := stored
	if t.Codec != nil {
		var err error
		decoded, err = compress.DecompressSized(t.Codec, stored, rawLen)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", errs.ErrSegmentCorrupt, t.Codec.Type(), err)
		}
	}

	if len(decoded) != rawLen {
		return fmt.Errorf("%w: decoded %d bytes, want %d", errs.ErrSegmentCorrupt, len(decoded), rawLen)
	}

	if t.Shuffle && elemSize > 1 {
		Unshuffle(dst, decoded, elemSize)
	} else {
		copy(dst, decoded)
	}

	return nil
}
