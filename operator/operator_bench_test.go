package operator

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/tierstore"
)

// benchField returns n float64 values of a smooth field in little-endian order.
func benchField(n int) []byte {
	b := make([]byte, 0, 8*n)
	for i := range n {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(math.Sin(float64(i)*0.01)))
	}

	return b
}

func newBenchOperator(b *testing.B, params Params) (*Operator, *tierstore.Store) {
	b.Helper()
	store, err := tierstore.New()
	if err != nil {
		b.Fatal(err)
	}
	op, err := New(params, WithStore(store))
	if err != nil {
		b.Fatal(err)
	}

	return op, store
}

func BenchmarkOperator_Compress(b *testing.B) {
	configs := map[string]Params{
		"roundrobin/none":  {ParamTiers: "4"},
		"roundrobin/zstd":  {ParamTiers: "4", ParamCodec: "zstd", ParamShuffle: "true"},
		"split/s2":         {ParamTiers: "4", ParamPlacement: "split", ParamCodec: "s2"},
		"split/mixed-tier": {ParamTiers: "4", ParamPlacement: "split", ParamCodec: "lz4", ParamTierCodec + "0": "none"},
	}

	const elements = 16384
	data := benchField(elements)
	dims := format.Dims{elements}

	for name, params := range configs {
		b.Run(name, func(b *testing.B) {
			op, store := newBenchOperator(b, params)
			out := make([]byte, op.MaxEncodedSize(dims))

			b.SetBytes(int64(len(data)))
			b.ResetTimer()

			calls := 0
			for b.Loop() {
				// keep tier buffers bounded
				if calls%1024 == 0 {
					store.Reset()
				}
				calls++

				if _, err := op.Compress(data, dims, 8, format.DataTypeFloat64, out, nil, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkOperator_Decompress(b *testing.B) {
	for _, codec := range []string{"none", "zstd", "s2", "lz4"} {
		b.Run(codec, func(b *testing.B) {
			op, _ := newBenchOperator(b, Params{ParamTiers: "2", ParamCodec: codec, ParamShuffle: "true"})

			const elements = 16384
			data := benchField(elements)
			dims := format.Dims{elements}
			out := make([]byte, op.MaxEncodedSize(dims))
			n, err := op.Compress(data, dims, 8, format.DataTypeFloat64, out, nil, nil)
			if err != nil {
				b.Fatal(err)
			}
			encoded := out[:n]
			dst := make([]byte, len(data))

			b.SetBytes(int64(len(data)))
			b.ResetTimer()

			for b.Loop() {
				if _, err := op.Decompress(encoded, dst, dims, format.DataTypeFloat64, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
