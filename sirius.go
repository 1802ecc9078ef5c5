// Package sirius provides a tiered data-reduction operator for typed arrays.
//
// Each compress call routes the bytes of an array into one of a fixed number
// of tier buffers held by a shared tier store, and returns a small
// self-describing record in place of the data. Decompressing the record
// reads the tier bytes back and rebuilds the array bit for bit.
//
// # Core Features
//
//   - Round-robin or split placement of arrays across tiers
//   - Cursor advance per call or per host step
//   - Optional byte shuffle and per-tier codecs (None, Zstd, S2, LZ4)
//   - xxHash64 checksummed metadata records with exact, precomputable size
//   - Reset epochs: records from before a reset fail instead of reading new data
//   - bbolt snapshots of tier buffers
//
// # Basic Usage
//
//	op, _ := sirius.NewOperator(operator.Params{"tiers": "2"})
//
//	out := make([]byte, op.MaxEncodedSize(dims))
//	n, err := op.Compress(data, dims, 4, format.DataTypeInt32, out, nil, info)
//
//	restored := make([]byte, len(data))
//	_, err = op.Decompress(out[:n], restored, dims, format.DataTypeInt32, nil)
//
// # Package Structure
//
// This package provides top-level wrappers around the operator and tierstore
// packages for the common case of a single process-wide store. Use those
// packages directly for isolated stores, logging and metrics.
package sirius

import (
	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/operator"
	"github.com/arloliu/sirius/tierstore"
)

// NewOperator creates an operator bound to the process-wide tier store
// unless opts include operator.WithStore.
//
// Example:
//
//	op, err := sirius.NewOperator(operator.Params{
//	    "tiers":     "3",
//	    "placement": "split",
//	    "codec":     "zstd",
//	})
func NewOperator(params operator.Params, opts ...operator.Option) (*operator.Operator, error) {
	return operator.New(params, opts...)
}

// NewStore creates an isolated tier store.
func NewStore(opts ...tierstore.Option) (*tierstore.Store, error) {
	return tierstore.New(opts...)
}

// DefaultStore returns the process-wide tier store.
func DefaultStore() *tierstore.Store {
	return tierstore.Default()
}

// Reset clears the process-wide tier store. Every record produced before the
// reset stops decoding.
//
// Reset must not run while compress or decompress calls are in flight.
func Reset() {
	tierstore.Default().Reset()
}

// IsTypeSupported reports whether arrays of typ can be compressed.
func IsTypeSupported(typ format.DataType) bool {
	return operator.IsTypeSupported(typ)
}
