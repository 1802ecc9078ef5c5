package format

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/arloliu/sirius/errs"
)

type (
	DataType        uint8
	CompressionType uint8
	PlacementPolicy uint8
	AdvancePolicy   uint8
)

const (
	DataTypeUnknown    DataType = 0x00 // DataTypeUnknown is the zero value, never valid.
	DataTypeInt8       DataType = 0x01
	DataTypeInt16      DataType = 0x02
	DataTypeInt32      DataType = 0x03
	DataTypeInt64      DataType = 0x04
	DataTypeUint8      DataType = 0x05
	DataTypeUint16     DataType = 0x06
	DataTypeUint32     DataType = 0x07
	DataTypeUint64     DataType = 0x08
	DataTypeFloat32    DataType = 0x09
	DataTypeFloat64    DataType = 0x0A
	DataTypeLongDouble DataType = 0x0B // DataTypeLongDouble is a 16-byte extended float.
	DataTypeComplex64  DataType = 0x0C // DataTypeComplex64 is a pair of float32.
	DataTypeComplex128 DataType = 0x0D // DataTypeComplex128 is a pair of float64.
	DataTypeChar       DataType = 0x0E
	DataTypeString     DataType = 0x0F // DataTypeString is variable length.
	DataTypeStruct     DataType = 0x10 // DataTypeStruct is a host-defined compound type.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.

	PlacementRoundRobin PlacementPolicy = 0x1 // PlacementRoundRobin writes a whole array into the current tier.
	PlacementSplit      PlacementPolicy = 0x2 // PlacementSplit partitions an array across all tiers.

	AdvancePerCall AdvancePolicy = 0x1 // AdvancePerCall moves the cursor after every compress call.
	AdvancePerStep AdvancePolicy = 0x2 // AdvancePerStep moves the cursor only at step boundaries.
)

var dataTypeSizes = [...]int{
	DataTypeUnknown:    0,
	DataTypeInt8:       1,
	DataTypeInt16:      2,
	DataTypeInt32:      4,
	DataTypeInt64:      8,
	DataTypeUint8:      1,
	DataTypeUint16:     2,
	DataTypeUint32:     4,
	DataTypeUint64:     8,
	DataTypeFloat32:    4,
	DataTypeFloat64:    8,
	DataTypeLongDouble: 16,
	DataTypeComplex64:  8,
	DataTypeComplex128: 16,
	DataTypeChar:       1,
	DataTypeString:     0,
	DataTypeStruct:     0,
}

var dataTypeNames = [...]string{
	DataTypeUnknown:    "unknown",
	DataTypeInt8:       "int8",
	DataTypeInt16:      "int16",
	DataTypeInt32:      "int32",
	DataTypeInt64:      "int64",
	DataTypeUint8:      "uint8",
	DataTypeUint16:     "uint16",
	DataTypeUint32:     "uint32",
	DataTypeUint64:     "uint64",
	DataTypeFloat32:    "float32",
	DataTypeFloat64:    "float64",
	DataTypeLongDouble: "long_double",
	DataTypeComplex64:  "complex64",
	DataTypeComplex128: "complex128",
	DataTypeChar:       "char",
	DataTypeString:     "string",
	DataTypeStruct:     "struct",
}

// Size returns the width of a single element in bytes.
// It returns 0 for variable-length, compound and unknown types.
func (t DataType) Size() int {
	if int(t) >= len(dataTypeSizes) {
		return 0
	}

	return dataTypeSizes[t]
}

// IsFixedWidth reports whether elements of the type have a fixed byte width.
func (t DataType) IsFixedWidth() bool {
	return t.Size() > 0
}

func (t DataType) String() string {
	if int(t) >= len(dataTypeNames) {
		return "unknown"
	}

	return dataTypeNames[t]
}

// ParseDataType parses a data type name as returned by DataType.String.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range dataTypeNames {
		if i != int(DataTypeUnknown) && n == name {
			return DataType(i), nil
		}
	}

	return DataTypeUnknown, fmt.Errorf("%w: unknown data type %q", errs.ErrInvalidParameter, s)
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompressionType parses a case-insensitive codec name (none, zstd, s2, lz4).
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: unknown codec %q", errs.ErrInvalidParameter, s)
	}
}

// IsValid reports whether c is one of the known compression types.
func (c CompressionType) IsValid() bool {
	return c >= CompressionNone && c <= CompressionLZ4
}

func (p PlacementPolicy) String() string {
	switch p {
	case PlacementRoundRobin:
		return "roundrobin"
	case PlacementSplit:
		return "split"
	default:
		return "unknown"
	}
}

// ParsePlacementPolicy parses a placement policy name; empty selects round-robin.
func ParsePlacementPolicy(s string) (PlacementPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "roundrobin", "round_robin", "round-robin":
		return PlacementRoundRobin, nil
	case "split":
		return PlacementSplit, nil
	default:
		return 0, fmt.Errorf("%w: unknown placement %q", errs.ErrInvalidParameter, s)
	}
}

// IsValid reports whether p is a known placement policy.
func (p PlacementPolicy) IsValid() bool {
	return p == PlacementRoundRobin || p == PlacementSplit
}

func (a AdvancePolicy) String() string {
	switch a {
	case AdvancePerCall:
		return "call"
	case AdvancePerStep:
		return "step"
	default:
		return "unknown"
	}
}

// ParseAdvancePolicy parses an advance policy name; empty selects per-call.
func ParseAdvancePolicy(s string) (AdvancePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "call":
		return AdvancePerCall, nil
	case "step":
		return AdvancePerStep, nil
	default:
		return 0, fmt.Errorf("%w: unknown advance policy %q", errs.ErrInvalidParameter, s)
	}
}

// Dims is the ordered list of per-dimension extents of an array.
// An empty Dims describes a scalar.
type Dims []uint64

// ElementCount returns the product of all extents.
func (d Dims) ElementCount() (int, error) {
	for _, v := range d {
		if v == 0 {
			return 0, nil
		}
	}

	n := uint64(1)
	for _, v := range d {
		hi, lo := bits.Mul64(n, v)
		if hi != 0 || lo > math.MaxInt {
			return 0, fmt.Errorf("%w: dims %v overflow element count", errs.ErrInvalidArray, []uint64(d))
		}
		n = lo
	}

	return int(n), nil
}

// Equal reports whether both shapes have the same extents in the same order.
func (d Dims) Equal(other Dims) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if d[i] != other[i] {
			return false
		}
	}

	return true
}

// Clone returns a copy of d.
func (d Dims) Clone() Dims {
	if d == nil {
		return nil
	}

	return append(Dims(make([]uint64, 0, len(d))), d...)
}

// String renders the shape as extents joined by "x", e.g. "4x3".
func (d Dims) String() string {
	parts := make([]string, len(d))
	for i, v := range d {
		parts[i] = strconv.FormatUint(v, 10)
	}

	return strings.Join(parts, "x")
}
