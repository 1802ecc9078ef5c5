package operator

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/metrics"
	"github.com/arloliu/sirius/section"
	"github.com/arloliu/sirius/tierstore"
)

func newStore(t *testing.T) *tierstore.Store {
	t.Helper()
	s, err := tierstore.New()
	require.NoError(t, err)

	return s
}

func newOperator(t *testing.T, store *tierstore.Store, params Params, opts ...Option) *Operator {
	t.Helper()
	op, err := New(params, append([]Option{WithStore(store)}, opts...)...)
	require.NoError(t, err)

	return op
}

func int32Bytes(vals ...int32) []byte {
	b := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, uint32(v))
	}

	return b
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}

	return b
}

// compressInt32 compresses vals as a 1-D int32 array.
func compressInt32(t *testing.T, op *Operator, vals ...int32) ([]byte, map[string]string) {
	t.Helper()
	dims := format.Dims{uint64(len(vals))}
	out := make([]byte, op.MaxEncodedSize(dims))
	info := map[string]string{}

	n, err := op.Compress(int32Bytes(vals...), dims, 4, format.DataTypeInt32, out, nil, info)
	require.NoError(t, err)
	require.Equal(t, len(out), n)

	return out[:n], info
}

func decompressInt32(t *testing.T, op *Operator, encoded []byte, count int) []byte {
	t.Helper()
	out := make([]byte, 4*count)
	n, err := op.Decompress(encoded, out, format.Dims{uint64(count)}, format.DataTypeInt32, nil)
	require.NoError(t, err)
	require.Equal(t, len(out), n)

	return out
}

func TestOperator_ExampleScenario(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2"})

	first, info1 := compressInt32(t, op, 1, 2, 3, 4)
	require.Equal(t, "0", info1[InfoTier])
	require.Equal(t, "[0,16)", info1[InfoRange])
	require.Equal(t, "int32", info1[InfoType])
	require.Equal(t, "4", info1[InfoShape])
	require.Equal(t, "4", info1[InfoElements])
	require.Equal(t, "16", info1[InfoBytes])
	require.Equal(t, "roundrobin", info1[InfoPlacement])
	require.Equal(t, strconv.FormatUint(store.Epoch(), 10), info1[InfoEpoch])

	second, info2 := compressInt32(t, op, 5, 6)
	require.Equal(t, "1", info2[InfoTier])
	require.Equal(t, "[0,8)", info2[InfoRange])

	require.Equal(t, int32Bytes(1, 2, 3, 4), decompressInt32(t, op, first, 4))
	require.Equal(t, int32Bytes(5, 6), decompressInt32(t, op, second, 2))
}

func TestOperator_TierRotation(t *testing.T) {
	const tiers = 3
	store := newStore(t)
	a := newOperator(t, store, Params{ParamTiers: strconv.Itoa(tiers)})
	b := newOperator(t, store, Params{ParamTiers: strconv.Itoa(tiers)})

	encoded := make([][]byte, 0, 7)
	for i := range 7 {
		// two operators on one store share the cursor
		op := a
		if i%2 == 1 {
			op = b
		}
		enc, info := compressInt32(t, op, int32(i), int32(i*10))
		require.Equal(t, strconv.Itoa(i%tiers), info[InfoTier])
		encoded = append(encoded, enc)

		if (i+1)%tiers == 0 {
			require.Equal(t, 0, store.Current())
		}
	}

	for i, enc := range encoded {
		require.Equal(t, int32Bytes(int32(i), int32(i*10)), decompressInt32(t, a, enc, 2))
	}
	require.Equal(t, []int{24, 16, 16}, store.Stats().TierBytes)
}

func TestOperator_TypeGating(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2"})
	_, _ = compressInt32(t, op, 1)
	before := store.Stats()

	for _, typ := range []format.DataType{format.DataTypeString, format.DataTypeStruct, format.DataTypeUnknown} {
		require.False(t, IsTypeSupported(typ))
		require.False(t, op.IsDataTypeValid(typ))

		out := make([]byte, 256)
		_, err := op.Compress([]byte{1, 2, 3, 4}, format.Dims{4}, 1, typ, out, nil, nil)
		require.ErrorIs(t, err, errs.ErrTypeUnsupported)

		_, err = op.Decompress(out, make([]byte, 4), format.Dims{4}, typ, nil)
		require.ErrorIs(t, err, errs.ErrTypeUnsupported)
	}
	require.Equal(t, before, store.Stats())

	for typ := format.DataTypeInt8; typ <= format.DataTypeChar; typ++ {
		require.True(t, IsTypeSupported(typ), typ.String())
		require.Equal(t, IsTypeSupported(typ), IsTypeSupported(typ))
	}
}

func TestOperator_ResetInvalidates(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2"})

	stale, _ := compressInt32(t, op, 1, 2, 3, 4)
	store.Reset()

	_, err := op.Decompress(stale, make([]byte, 16), format.Dims{4}, format.DataTypeInt32, nil)
	require.ErrorIs(t, err, errs.ErrTierDataMissing)

	// same offsets exist again but belong to a new epoch
	_, _ = compressInt32(t, op, 9, 9, 9, 9)
	_, err = op.Decompress(stale, make([]byte, 16), format.Dims{4}, format.DataTypeInt32, nil)
	require.ErrorIs(t, err, errs.ErrTierDataMissing)

	fresh, info := compressInt32(t, op, 7, 8)
	require.Equal(t, "1", info[InfoTier])
	require.Equal(t, int32Bytes(7, 8), decompressInt32(t, op, fresh, 2))
}

func TestOperator_ConcurrentCompress(t *testing.T) {
	const tiers = 8
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: strconv.Itoa(tiers), ParamCodec: "s2"})

	type result struct {
		data    []byte
		encoded []byte
		tier    string
	}
	results := make([]result, tiers)

	var g errgroup.Group
	for i := range tiers {
		g.Go(func() error {
			data := bytes.Repeat(int32Bytes(int32(i)), 100+i)
			dims := format.Dims{uint64(100 + i)}
			out := make([]byte, op.MaxEncodedSize(dims))
			info := map[string]string{}
			n, err := op.Compress(data, dims, 4, format.DataTypeInt32, out, nil, info)
			if err != nil {
				return err
			}
			results[i] = result{data: data, encoded: out[:n], tier: info[InfoTier]}

			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, r := range results {
		require.False(t, seen[r.tier], "tier %s used twice", r.tier)
		seen[r.tier] = true
	}
	require.Len(t, seen, tiers)

	var dg errgroup.Group
	for _, r := range results {
		dg.Go(func() error {
			a, err := op.DecompressArray(r.encoded)
			if err != nil {
				return err
			}
			if !bytes.Equal(r.data, a.Data) {
				return errs.ErrSegmentCorrupt
			}

			return nil
		})
	}
	require.NoError(t, dg.Wait())
}

func TestOperator_SplitPlacement(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "3", ParamPlacement: "split"})

	vals := []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	dims := format.Dims{2, 5}
	require.Equal(t, section.EncodedSize(2, 3), op.MaxEncodedSize(dims))

	out := make([]byte, op.MaxEncodedSize(dims))
	info := map[string]string{}
	n, err := op.Compress(int32Bytes(vals...), dims, 4, format.DataTypeInt32, out, nil, info)
	require.NoError(t, err)

	require.Equal(t, "0,1,2", info[InfoTier])
	require.Equal(t, "[0,12);[0,12);[0,16)", info[InfoRange])
	require.Equal(t, "split", info[InfoPlacement])
	require.Equal(t, "2x5", info[InfoShape])
	require.Equal(t, 0, store.Current(), "split placement does not move the cursor")
	require.Equal(t, []int{12, 12, 16}, store.Stats().TierBytes)

	got := make([]byte, 40)
	_, err = op.Decompress(out[:n], got, dims, format.DataTypeInt32, nil)
	require.NoError(t, err)
	require.Equal(t, int32Bytes(vals...), got)

	// fewer elements than tiers leaves leading segments empty
	_, info = compressInt32(t, op, 42)
	require.Equal(t, "[12,12);[12,12);[16,20)", info[InfoRange])
}

func TestOperator_StepAdvance(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2", ParamAdvance: "step"})

	// no-op until the store is active
	require.NoError(t, op.EndStep())

	_, i1 := compressInt32(t, op, 1)
	_, i2 := compressInt32(t, op, 2)
	require.Equal(t, "0", i1[InfoTier])
	require.Equal(t, "0", i2[InfoTier])

	require.NoError(t, op.EndStep())
	_, i3 := compressInt32(t, op, 3)
	require.Equal(t, "1", i3[InfoTier])

	require.NoError(t, op.EndStep())
	require.Equal(t, 0, store.Current())

	perCall := newOperator(t, store, Params{ParamTiers: "2"})
	require.NoError(t, perCall.EndStep())
	require.Equal(t, 0, store.Current())
}

func TestOperator_RoundTripAllTypes(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	shapes := []format.Dims{{}, {0}, {1}, {7}, {3, 4}, {2, 0, 5}, {2, 3, 4}}
	configs := []Params{
		{ParamTiers: "1"},
		{ParamTiers: "3", ParamCodec: "zstd", ParamShuffle: "true"},
		{ParamTiers: "2", ParamPlacement: "split", ParamCodec: "lz4"},
		{ParamTiers: "4", ParamPlacement: "split", ParamShuffle: "true", "codec.1": "s2", "codec.2": "zstd"},
		{ParamTiers: "3", "codec.0": "zstd", "codec.2": "lz4"},
	}

	for ci, params := range configs {
		store := newStore(t)
		op := newOperator(t, store, params)

		for typ := format.DataTypeInt8; typ <= format.DataTypeChar; typ++ {
			for _, dims := range shapes {
				count, err := dims.ElementCount()
				require.NoError(t, err)
				a, err := NewArray(typ, dims, randomBytes(r, count*typ.Size()))
				require.NoError(t, err)

				encoded, _, err := op.CompressArray(a)
				require.NoError(t, err, "config %d %s %v", ci, typ, dims)
				require.NotEmpty(t, encoded)

				got, err := op.DecompressArray(encoded)
				require.NoError(t, err, "config %d %s %v", ci, typ, dims)
				require.Equal(t, typ, got.Type)
				require.True(t, dims.Equal(got.Dims))
				require.Equal(t, len(a.Data), len(got.Data))
				require.True(t, bytes.Equal(a.Data, got.Data), "config %d %s %v", ci, typ, dims)
			}
		}
	}
}

func TestOperator_CodecsReduceTierBytes(t *testing.T) {
	data := make([]byte, 64*1024)
	for i := 0; i < len(data); i += 8 {
		binary.LittleEndian.PutUint64(data[i:], uint64(i/8))
	}
	dims := format.Dims{uint64(len(data) / 8)}

	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2", ParamShuffle: "true", ParamCodec: "zstd", "codec.1": "none"})

	a, err := NewArray(format.DataTypeUint64, dims, data)
	require.NoError(t, err)
	enc0, _, err := op.CompressArray(a)
	require.NoError(t, err)
	enc1, _, err := op.CompressArray(a)
	require.NoError(t, err)

	tierBytes := store.Stats().TierBytes
	require.Less(t, tierBytes[0], len(data)/4)
	require.Equal(t, len(data), tierBytes[1])

	for _, enc := range [][]byte{enc0, enc1} {
		got, err := op.DecompressArray(enc)
		require.NoError(t, err)
		require.Equal(t, data, got.Data)
	}
}

func TestOperator_CapacityRollback(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2", ParamMaxTierBytes: "16"})

	_, _ = compressInt32(t, op, 1, 2, 3, 4)
	_, _ = compressInt32(t, op, 5)
	before := store.Stats()
	require.Equal(t, 0, before.Current)

	dims := format.Dims{2}
	out := make([]byte, op.MaxEncodedSize(dims))
	_, err := op.Compress(int32Bytes(6, 7), dims, 4, format.DataTypeInt32, out, nil, nil)
	require.ErrorIs(t, err, errs.ErrTierCapacityExceeded)
	require.Equal(t, before, store.Stats())

	// the split path rolls back segments appended before the failing one
	splitStore := newStore(t)
	require.NoError(t, splitStore.Init(2))
	_, err = splitStore.Append(1, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	before = splitStore.Stats()

	split := newOperator(t, splitStore, Params{ParamTiers: "2", ParamPlacement: "split", ParamMaxTierBytes: "16"})
	dims = format.Dims{8}
	out = make([]byte, split.MaxEncodedSize(dims))
	_, err = split.Compress(int32Bytes(1, 2, 3, 4, 5, 6, 7, 8), dims, 4, format.DataTypeInt32, out, nil, nil)
	require.ErrorIs(t, err, errs.ErrTierCapacityExceeded)
	require.Equal(t, before, splitStore.Stats())
}

func TestOperator_CompressRejects(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2"})
	dims := format.Dims{4}
	data := int32Bytes(1, 2, 3, 4)

	_, err := op.Compress(data, dims, 4, format.DataTypeInt32, make([]byte, op.MaxEncodedSize(dims)-1), nil, nil)
	require.ErrorIs(t, err, errs.ErrBufferTooSmall)

	_, err = op.Compress(data, dims, 8, format.DataTypeInt32, make([]byte, 256), nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArray)

	_, err = op.Compress(data[:15], dims, 4, format.DataTypeInt32, make([]byte, 256), nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArray)

	_, err = op.Compress(data, format.Dims{1 << 62, 1 << 62}, 4, format.DataTypeInt32, make([]byte, 256), nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArray)

	require.Equal(t, tierstore.StateUninitialized, store.State())
}

func TestOperator_DecompressRejects(t *testing.T) {
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2"})
	enc, _ := compressInt32(t, op, 1, 2, 3, 4)
	out := make([]byte, 16)

	t.Run("Corrupt record", func(t *testing.T) {
		bad := bytes.Clone(enc)
		bad[section.HeaderSize+3] ^= 0xFF
		_, err := op.Decompress(bad, out, format.Dims{4}, format.DataTypeInt32, nil)
		require.ErrorIs(t, err, errs.ErrMetadataCorrupt)

		_, err = op.Decompress(enc[:10], out, format.Dims{4}, format.DataTypeInt32, nil)
		require.ErrorIs(t, err, errs.ErrMetadataCorrupt)

		_, err = op.DecompressArray(nil)
		require.ErrorIs(t, err, errs.ErrMetadataCorrupt)
	})

	t.Run("Type mismatch", func(t *testing.T) {
		_, err := op.Decompress(enc, out, format.Dims{4}, format.DataTypeFloat32, nil)
		require.ErrorIs(t, err, errs.ErrMetadataCorrupt)
	})

	t.Run("Shape mismatch", func(t *testing.T) {
		_, err := op.Decompress(enc, out, format.Dims{2, 2}, format.DataTypeInt32, nil)
		require.ErrorIs(t, err, errs.ErrShapeMismatch)
	})

	t.Run("Output too small", func(t *testing.T) {
		_, err := op.Decompress(enc, out[:15], format.Dims{4}, format.DataTypeInt32, nil)
		require.ErrorIs(t, err, errs.ErrBufferTooSmall)
	})

	t.Run("Trailing bytes", func(t *testing.T) {
		padded := append(bytes.Clone(enc), 0xAA, 0xBB)
		n, err := op.Decompress(padded, out, format.Dims{4}, format.DataTypeInt32, nil)
		require.NoError(t, err)
		require.Equal(t, 16, n)
	})

	t.Run("Other store", func(t *testing.T) {
		other := newOperator(t, newStore(t), Params{ParamTiers: "2"})
		_, err := other.Decompress(enc, out, format.Dims{4}, format.DataTypeInt32, nil)
		require.ErrorIs(t, err, errs.ErrTierDataMissing)
	})
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, errs.ErrTierConfiguration)

	_, err = New(Params{ParamTiers: "2"}, WithStore(nil))
	require.ErrorIs(t, err, errs.ErrInvalidParameter)

	store := newStore(t)
	require.NoError(t, store.Init(2))
	_, err = New(Params{ParamTiers: "3"}, WithStore(store))
	require.ErrorIs(t, err, errs.ErrTierConfigurationConflict)

	op := newOperator(t, newStore(t), Params{ParamTiers: "4"})
	require.Equal(t, 4, op.Settings().TierCount)
}

func TestNew_DefaultStore(t *testing.T) {
	op, err := New(Params{ParamTiers: "1"})
	require.NoError(t, err)
	require.Same(t, tierstore.Default(), op.Store())
}

func TestOperator_Observability(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "2"}, WithLogger(zap.New(core)), WithMetrics(m))

	enc, _ := compressInt32(t, op, 1, 2, 3)
	_ = decompressInt32(t, op, enc, 3)
	_, err := op.Compress(nil, nil, 1, format.DataTypeString, nil, nil, nil)
	require.Error(t, err)

	entries := logs.FilterMessage("array compressed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "int32", fields["type"])
	require.Equal(t, int64(12), fields["length"])
	require.Equal(t, 1, logs.FilterMessage("array decompressed").Len())

	require.InDelta(t, 1, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpCompress, "ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpCompress, "type_unsupported")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpDecompress, "ok")), 0)
	require.InDelta(t, 12, testutil.ToFloat64(m.Bytes.WithLabelValues(metrics.OpDecompress)), 0)
}

func TestOperator_DecodeFromSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.db")

	src := newStore(t)
	writer := newOperator(t, src, Params{ParamTiers: "2", ParamCodec: "zstd"})
	e1, _ := compressInt32(t, writer, 10, 20, 30)
	e2, _ := compressInt32(t, writer, 40)
	require.NoError(t, src.SaveSnapshot(path))

	dst := newStore(t)
	require.NoError(t, dst.LoadSnapshot(path))
	reader := newOperator(t, dst, Params{ParamTiers: "2"})

	require.Equal(t, int32Bytes(10, 20, 30), decompressInt32(t, reader, e1, 3))
	require.Equal(t, int32Bytes(40), decompressInt32(t, reader, e2, 1))
}

func TestOperator_SnapshotReloadKeepsStaleRecordsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.db")
	store := newStore(t)
	op := newOperator(t, store, Params{ParamTiers: "1"})

	saved, _ := compressInt32(t, op, 1, 1, 1, 1)
	require.NoError(t, store.SaveSnapshot(path))
	afterSave, _ := compressInt32(t, op, 3, 3, 3, 3)

	store.Reset()
	stale, _ := compressInt32(t, op, 2, 2, 2, 2)

	store.Reset()
	require.NoError(t, store.LoadSnapshot(path))
	require.Equal(t, int32Bytes(1, 1, 1, 1), decompressInt32(t, op, saved, 4))

	// refill the offsets the post-save record points at
	_, _ = compressInt32(t, op, 8, 8, 8, 8)
	_, err := op.Decompress(afterSave, make([]byte, 16), format.Dims{4}, format.DataTypeInt32, nil)
	require.ErrorIs(t, err, errs.ErrTierDataMissing)

	store.Reset()
	_, _ = compressInt32(t, op, 9, 9, 9, 9)
	for _, rec := range [][]byte{saved, afterSave, stale} {
		_, err := op.Decompress(rec, make([]byte, 16), format.Dims{4}, format.DataTypeInt32, nil)
		require.ErrorIs(t, err, errs.ErrTierDataMissing)
	}
}
