// Package operator implements the tiered data-reduction operator.
//
// Compress routes an array's bytes into the tier buffers of a shared
// tierstore.Store and writes a small metadata record into the caller's
// output buffer. Decompress reads that record back, locates the segments in
// the store and rebuilds the original bytes in element order.
//
// Every operator bound to the same store shares its tiers and its cursor;
// without WithStore that is the process-wide tierstore.Default().
//
// All settings are fixed when the operator is created. The params arguments
// of Compress and Decompress exist for host compatibility and are ignored.
package operator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/arloliu/sirius/compress"
	"github.com/arloliu/sirius/encoding"
	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/format"
	"github.com/arloliu/sirius/internal/options"
	"github.com/arloliu/sirius/metrics"
	"github.com/arloliu/sirius/section"
	"github.com/arloliu/sirius/tierstore"
)

// Keys of the info map filled by Compress.
const (
	InfoTier      = "tier"      // comma separated tier of every segment
	InfoRange     = "range"     // "[off,end)" of every segment, joined by ";"
	InfoEpoch     = "epoch"     // store epoch the segments belong to
	InfoType      = "type"      // element type name
	InfoShape     = "shape"     // dims joined by "x"
	InfoElements  = "elements"  // element count
	InfoBytes     = "bytes"     // raw array size
	InfoPlacement = "placement" // placement policy name
)

// Operator is a configured tiered operator. It is safe for concurrent use.
type Operator struct {
	settings   Settings
	store      *tierstore.Store
	transforms []encoding.Transform
	uniform    bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Operator.
type Option = options.Option[*Operator]

// WithStore binds the operator to store instead of tierstore.Default().
func WithStore(store *tierstore.Store) Option {
	return options.New(func(o *Operator) error {
		if store == nil {
			return fmt.Errorf("%w: nil tier store", errs.ErrInvalidParameter)
		}
		o.store = store

		return nil
	})
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(o *Operator) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return options.NoError(func(o *Operator) {
		o.metrics = m
	})
}

// New creates an operator from host parameters.
//
// Returns errs.ErrTierConfiguration if the tier count is missing or invalid,
// and errs.ErrTierConfigurationConflict if the store is already active with
// a different tier count.
func New(params Params, opts ...Option) (*Operator, error) {
	settings, err := ParseSettings(params)
	if err != nil {
		return nil, err
	}

	o := &Operator{
		settings: settings,
		logger:   zap.NewNop(),
	}
	if err := options.Apply(o, opts...); err != nil {
		return nil, err
	}
	if o.store == nil {
		o.store = tierstore.Default()
	}

	if n := o.store.TierCount(); n != 0 && n != settings.TierCount {
		return nil, fmt.Errorf("%w: store has %d tiers, operator wants %d", errs.ErrTierConfigurationConflict, n, settings.TierCount)
	}

	o.transforms = make([]encoding.Transform, settings.TierCount)
	o.uniform = true
	for i := range o.transforms {
		codec, err := compress.CreateCodec(settings.CodecFor(i), "tier "+strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrInvalidParameter, err)
		}
		o.transforms[i] = encoding.Transform{Shuffle: settings.Shuffle, Codec: codec}
		if settings.CodecFor(i) != settings.Codec {
			o.uniform = false
		}
	}

	o.logger.Debug("tiered operator created",
		zap.Int("tiers", settings.TierCount),
		zap.Stringer("placement", settings.Placement),
		zap.Stringer("advance", settings.Advance),
		zap.Stringer("codec", settings.Codec),
		zap.Bool("shuffle", settings.Shuffle),
	)

	return o, nil
}

// Settings returns the validated operator settings.
func (o *Operator) Settings() Settings {
	return o.settings
}

// Store returns the tier store the operator writes to.
func (o *Operator) Store() *tierstore.Store {
	return o.store
}

// IsTypeSupported reports whether arrays of typ can be compressed. The
// answer depends only on typ: every fixed-width numeric type and char.
func IsTypeSupported(typ format.DataType) bool {
	return typ.IsFixedWidth()
}

// IsDataTypeValid reports whether the operator accepts typ.
func (o *Operator) IsDataTypeValid(typ format.DataType) bool {
	return IsTypeSupported(typ)
}

// MaxEncodedSize returns the exact number of bytes Compress writes for an
// array with the given shape.
func (o *Operator) MaxEncodedSize(dims format.Dims) int {
	return section.EncodedSize(len(dims), o.segmentCount())
}

func (o *Operator) segmentCount() int {
	if o.settings.Placement == format.PlacementSplit {
		return o.settings.TierCount
	}

	return 1
}

// EndStep marks the end of a host step. With the step advance policy it
// moves the cursor to the next tier; otherwise it does nothing.
func (o *Operator) EndStep() error {
	if o.settings.Advance != format.AdvancePerStep {
		return nil
	}

	return o.store.Update(func(tx *tierstore.Tx) error {
		if tx.State() != tierstore.StateActive {
			return nil
		}
		cur, err := tx.Advance()
		if err == nil {
			o.logger.Debug("step ended", zap.Int("current_tier", cur))
		}

		return err
	})
}

// segment is one element-aligned slice of the array waiting to be stored.
type segment struct {
	raw    []byte
	stored []byte
	tier   int
	ct     format.CompressionType
	r      tierstore.Range
	clean  func()
}

func (s *segment) release() {
	if s.clean != nil {
		s.clean()
		s.clean = nil
	}
}

// Compress stores dataIn in the tier buffers and writes the metadata record
// into bufferOut, returning the number of bytes written. If info is not nil
// it receives the Info* keys.
//
// dataIn must hold exactly the elements described by dims, each elementSize
// bytes wide. Nothing in the store changes when Compress fails.
func (o *Operator) Compress(dataIn []byte, dims format.Dims, elementSize int, typ format.DataType,
	bufferOut []byte, _ Params, info map[string]string,
) (int, error) {
	n, err := o.compress(dataIn, dims, elementSize, typ, bufferOut, info)
	o.metrics.ObserveOperation(metrics.OpCompress, err)
	if err != nil {
		return 0, err
	}
	o.metrics.AddBytes(metrics.OpCompress, len(dataIn))

	return n, nil
}

func (o *Operator) compress(dataIn []byte, dims format.Dims, elementSize int, typ format.DataType,
	bufferOut []byte, info map[string]string,
) (int, error) {
	if !IsTypeSupported(typ) {
		return 0, fmt.Errorf("%w: %s", errs.ErrTypeUnsupported, typ)
	}

	arr := Array{Type: typ, Dims: dims, Data: dataIn}
	count, err := arr.validate(elementSize)
	if err != nil {
		return 0, err
	}
	if len(dims) > section.MaxDims {
		return 0, fmt.Errorf("%w: %d dimensions", errs.ErrInvalidArray, len(dims))
	}

	size := o.MaxEncodedSize(dims)
	if len(bufferOut) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", errs.ErrBufferTooSmall, size, len(bufferOut))
	}

	segs := o.partition(dataIn, count, elementSize)
	defer func() {
		for i := range segs {
			segs[i].release()
		}
	}()

	// tiers are known up front unless round-robin picks one under the lock
	preEncode := o.settings.Placement == format.PlacementSplit || o.uniform
	if preEncode {
		for i := range segs {
			if err := o.encode(&segs[i], elementSize); err != nil {
				return 0, err
			}
		}
	}

	meta := section.Metadata{
		Header: section.NewHeader(typ, o.settings.Placement),
		Dims:   dims,
	}
	meta.Header.Flag.SetShuffle(o.settings.Shuffle)
	meta.Header.ElementCount = uint64(count)  //nolint: gosec
	meta.Header.RawSize = uint64(len(dataIn)) //nolint: gosec

	var written int
	err = o.store.Update(func(tx *tierstore.Tx) error {
		if err := tx.Init(o.settings.TierCount); err != nil {
			return err
		}

		if o.settings.Placement == format.PlacementRoundRobin {
			segs[0].tier = tx.Current()
			if !preEncode {
				if err := o.encode(&segs[0], elementSize); err != nil {
					return err
				}
			}
		}

		meta.Segments = make([]section.SegmentEntry, len(segs))
		for i := range segs {
			s := &segs[i]
			if err := o.checkCapacity(tx, s); err != nil {
				return err
			}
			r, err := tx.Append(s.tier, s.stored)
			if err != nil {
				return err
			}
			s.r = r
			meta.Segments[i] = section.SegmentEntry{
				Tier:         uint16(s.tier), //nolint: gosec
				Compression:  s.ct,
				Offset:       r.Offset,
				StoredLength: r.Length,
				RawLength:    uint64(len(s.raw)), //nolint: gosec
			}
		}

		if o.settings.Placement == format.PlacementRoundRobin && o.settings.Advance == format.AdvancePerCall {
			if _, err := tx.Advance(); err != nil {
				return err
			}
		}

		meta.Header.Epoch = tx.Epoch()
		n, err := meta.MarshalTo(bufferOut)
		written = n

		return err
	})
	if err != nil {
		return 0, err
	}

	if info != nil {
		fillInfo(info, &meta, segs)
	}

	if ce := o.logger.Check(zap.DebugLevel, "array compressed"); ce != nil {
		ce.Write(
			zap.Ints("tier", meta.Tiers()),
			zap.Uint64("offset", segs[0].r.Offset),
			zap.Int("length", len(dataIn)),
			zap.Stringer("type", typ),
			zap.Uint64("epoch", meta.Header.Epoch),
		)
	}

	return written, nil
}

// partition cuts data into the segments dictated by the placement policy.
// Split placement gives tier i the i-th of tierCount element-aligned runs,
// the last one taking the remainder.
func (o *Operator) partition(data []byte, count, elementSize int) []segment {
	if o.settings.Placement != format.PlacementSplit {
		return []segment{{raw: data}}
	}

	n := o.settings.TierCount
	per := count / n
	segs := make([]segment, n)
	for i := range segs {
		start := i * per * elementSize
		end := start + per*elementSize
		if i == n-1 {
			end = len(data)
		}
		segs[i] = segment{raw: data[start:end], tier: i}
	}

	return segs
}

func (o *Operator) encode(s *segment, elementSize int) error {
	t := o.transforms[s.tier]
	stored, clean, err := t.Encode(s.raw, elementSize)
	if err != nil {
		return err
	}
	s.stored = stored
	s.clean = clean
	s.ct = t.Compression()

	return nil
}

func (o *Operator) checkCapacity(tx *tierstore.Tx, s *segment) error {
	limit := o.settings.MaxTierBytes
	if limit <= 0 {
		return nil
	}
	n, err := tx.Len(s.tier)
	if err != nil {
		return err
	}
	if n+len(s.stored) > limit {
		return fmt.Errorf("%w: tier %d holds %d bytes, limit %d, append %d",
			errs.ErrTierCapacityExceeded, s.tier, n, limit, len(s.stored))
	}

	return nil
}

func fillInfo(info map[string]string, meta *section.Metadata, segs []segment) {
	tiers := make([]string, len(segs))
	ranges := make([]string, len(segs))
	for i, s := range segs {
		tiers[i] = strconv.Itoa(s.tier)
		ranges[i] = s.r.String()
	}

	info[InfoTier] = strings.Join(tiers, ",")
	info[InfoRange] = strings.Join(ranges, ";")
	info[InfoEpoch] = strconv.FormatUint(meta.Header.Epoch, 10)
	info[InfoType] = meta.Header.DataType.String()
	info[InfoShape] = meta.Dims.String()
	info[InfoElements] = strconv.FormatUint(meta.Header.ElementCount, 10)
	info[InfoBytes] = strconv.FormatUint(meta.Header.RawSize, 10)
	info[InfoPlacement] = meta.Header.Placement.String()
}

// Decompress rebuilds the array described by the record in bufferIn into
// dataOut and returns the number of bytes written.
//
// dims and typ must match the values passed to Compress. Returns
// errs.ErrTierDataMissing if the referenced tier data no longer exists, for
// example after a reset.
func (o *Operator) Decompress(bufferIn []byte, dataOut []byte, dims format.Dims, typ format.DataType, _ Params) (int, error) {
	n, err := o.decompress(bufferIn, dataOut, dims, typ)
	o.metrics.ObserveOperation(metrics.OpDecompress, err)
	if err != nil {
		return 0, err
	}
	o.metrics.AddBytes(metrics.OpDecompress, n)

	return n, nil
}

func (o *Operator) decompress(bufferIn []byte, dataOut []byte, dims format.Dims, typ format.DataType) (int, error) {
	if !IsTypeSupported(typ) {
		return 0, fmt.Errorf("%w: %s", errs.ErrTypeUnsupported, typ)
	}

	meta, err := section.ParseMetadata(bufferIn)
	if err != nil {
		return 0, err
	}
	if meta.Header.DataType != typ {
		return 0, fmt.Errorf("%w: encoded %s, requested %s", errs.ErrShapeMismatch, meta.Header.DataType, typ)
	}
	if !meta.Dims.Equal(dims) {
		return 0, fmt.Errorf("%w: encoded %v, requested %v", errs.ErrShapeMismatch, []uint64(meta.Dims), []uint64(dims))
	}

	rawSize := int(meta.Header.RawSize) //nolint: gosec
	if uint64(len(dataOut)) < meta.Header.RawSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", errs.ErrBufferTooSmall, meta.Header.RawSize, len(dataOut))
	}

	err = o.store.View(func(tx *tierstore.ReadTx) error {
		return decodeSegments(tx, &meta, dataOut[:rawSize])
	})
	if err != nil {
		return 0, err
	}

	o.logger.Debug("array decompressed",
		zap.Ints("tier", meta.Tiers()),
		zap.Int("length", rawSize),
		zap.Stringer("type", typ),
	)

	return rawSize, nil
}

// decodeSegments decodes every segment of meta into out, in segment order.
func decodeSegments(tx *tierstore.ReadTx, meta *section.Metadata, out []byte) error {
	if tx.State() != tierstore.StateActive {
		return fmt.Errorf("%w: tier store not initialized", errs.ErrTierDataMissing)
	}
	if !tx.AcceptsEpoch(meta.Header.Epoch) {
		return fmt.Errorf("%w: encoded in epoch %d, store is at epoch %d", errs.ErrTierDataMissing, meta.Header.Epoch, tx.Epoch())
	}

	elementSize := meta.Header.DataType.Size()
	shuffle := meta.Header.Flag.HasShuffle()

	pos := 0
	for i, seg := range meta.Segments {
		stored, err := tx.Read(int(seg.Tier), tierstore.Range{Offset: seg.Offset, Length: seg.StoredLength})
		if err != nil {
			return err
		}

		t, err := encoding.NewTransform(shuffle, seg.Compression)
		if err != nil {
			return fmt.Errorf("%w: segment %d: %w", errs.ErrMetadataCorrupt, i, err)
		}

		end := pos + int(seg.RawLength) //nolint: gosec
		if err := t.DecodeInto(out[pos:end], stored, elementSize); err != nil {
			return fmt.Errorf("segment %d (tier %d): %w", i, seg.Tier, err)
		}
		pos = end
	}

	return nil
}

// CompressArray compresses a into a newly allocated buffer and returns it
// with the info map.
func (o *Operator) CompressArray(a Array) ([]byte, map[string]string, error) {
	out := make([]byte, o.MaxEncodedSize(a.Dims))
	info := make(map[string]string, 8)

	n, err := o.Compress(a.Data, a.Dims, a.Type.Size(), a.Type, out, nil, info)
	if err != nil {
		return nil, nil, err
	}

	return out[:n], info, nil
}

// DecompressArray rebuilds the array whose record is in encoded, taking the
// type and shape from the record itself.
func (o *Operator) DecompressArray(encoded []byte) (Array, error) {
	meta, err := section.ParseMetadata(encoded)
	if err != nil {
		o.metrics.ObserveOperation(metrics.OpDecompress, err)
		return Array{}, err
	}

	if meta.Header.RawSize > math.MaxInt {
		err := fmt.Errorf("%w: raw size %d too large to allocate", errs.ErrInvalidArray, meta.Header.RawSize)
		o.metrics.ObserveOperation(metrics.OpDecompress, err)

		return Array{}, err
	}

	a := Array{
		Type: meta.Header.DataType,
		Dims: meta.Dims,
		Data: make([]byte, meta.Header.RawSize),
	}
	if _, err := o.Decompress(encoded, a.Data, a.Dims, a.Type, nil); err != nil {
		return Array{}, err
	}

	return a, nil
}
