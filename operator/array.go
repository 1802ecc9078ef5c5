package operator

import (
	"fmt"

	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
)

// Array is a typed array as raw element bytes in host byte order plus its
// shape. The operator never modifies Data.
type Array struct {
	Type format.DataType
	Dims format.Dims
	Data []byte
}

// NewArray checks that data holds exactly the elements described by typ and
// dims.
func NewArray(typ format.DataType, dims format.Dims, data []byte) (Array, error) {
	a := Array{Type: typ, Dims: dims.Clone(), Data: data}
	if _, err := a.validate(typ.Size()); err != nil {
		return Array{}, err
	}

	return a, nil
}

// ElementCount returns the number of elements implied by Dims.
func (a Array) ElementCount() int {
	n, err := a.Dims.ElementCount()
	if err != nil {
		return 0
	}

	return n
}

// ElementSize returns the width of one element in bytes.
func (a Array) ElementSize() int {
	return a.Type.Size()
}

// validate checks the element size and data length and returns the element count.
func (a Array) validate(elementSize int) (int, error) {
	if !a.Type.IsFixedWidth() {
		return 0, fmt.Errorf("%w: %s", errs.ErrTypeUnsupported, a.Type)
	}
	if elementSize != a.Type.Size() {
		return 0, fmt.Errorf("%w: element size %d for %s, want %d", errs.ErrInvalidArray, elementSize, a.Type, a.Type.Size())
	}

	count, err := a.Dims.ElementCount()
	if err != nil {
		return 0, err
	}
	if count > len(a.Data)/elementSize+1 || count*elementSize != len(a.Data) {
		return 0, fmt.Errorf("%w: %d bytes for %d %s elements", errs.ErrInvalidArray, len(a.Data), count, a.Type)
	}

	return count, nil
}
