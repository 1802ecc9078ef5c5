package tierstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/section"
)

// ReadTx is a read transaction. It must not be used after the View callback
// returns.
type ReadTx struct {
	s      *Store
	closed bool
}

// State returns the store state.
func (tx *ReadTx) State() State { return tx.s.state }

// TierCount returns the tier count, or 0 when Uninitialized.
func (tx *ReadTx) TierCount() int { return tx.s.tierCount }

// Current returns the current-tier cursor.
func (tx *ReadTx) Current() int { return tx.s.cursor }

// Epoch returns the epoch assigned to new appends.
func (tx *ReadTx) Epoch() uint64 { return tx.s.epoch }

// AcceptsEpoch reports whether data written in epoch e is still held by the
// store.
func (tx *ReadTx) AcceptsEpoch(e uint64) bool { return tx.s.acceptsEpoch(e) }

// Len returns the length of a tier buffer.
func (tx *ReadTx) Len(tier int) (int, error) {
	return tx.s.tierLen(tier)
}

// Read returns the bytes at r in a tier buffer without copying.
//
// Returns errs.ErrTierDataMissing if the store is not Active, the tier does
// not exist or the range lies past the end of the buffer.
func (tx *ReadTx) Read(tier int, r Range) ([]byte, error) {
	if tx.closed {
		panic("tierstore: read transaction used after View returned")
	}

	return tx.s.read(tier, r)
}

type undoEntry struct {
	tier int
	len  int
}

// Tx is a write transaction. It must not be used after the Update callback
// returns.
type Tx struct {
	ReadTx

	initialized bool
	prevCursor  int
	undo        []undoEntry
}

func newTx(s *Store) *Tx {
	return &Tx{
		ReadTx:     ReadTx{s: s},
		prevCursor: s.cursor,
	}
}

// Init activates the store with tierCount tiers.
//
// Returns errs.ErrTierConfiguration if tierCount is out of range and
// errs.ErrTierConfigurationConflict if the store is Active with a different
// count.
func (tx *Tx) Init(tierCount int) error {
	tx.checkOpen()
	s := tx.s

	if tierCount < 1 || tierCount > section.MaxSegments {
		return fmt.Errorf("%w: tier count %d not in [1, %d]", errs.ErrTierConfiguration, tierCount, section.MaxSegments)
	}

	if s.state == StateActive {
		if s.tierCount != tierCount {
			s.logger.Warn("tier store already initialized with a different tier count",
				zap.Int("tier_count", s.tierCount),
				zap.Int("requested", tierCount),
			)

			return fmt.Errorf("%w: store has %d tiers, requested %d", errs.ErrTierConfigurationConflict, s.tierCount, tierCount)
		}

		return nil
	}

	s.activate(tierCount)
	tx.initialized = true
	tx.prevCursor = 0

	return nil
}

// Append appends data to a tier buffer and returns where it was written.
//
// Returns errs.ErrTierConfiguration if the store is not Active or the tier
// does not exist, and errs.ErrTierCapacityExceeded if the store has a tier
// byte limit that the append would cross.
func (tx *Tx) Append(tier int, data []byte) (Range, error) {
	tx.checkOpen()
	s := tx.s

	if s.state != StateActive {
		return Range{}, fmt.Errorf("%w: tier store not initialized", errs.ErrTierConfiguration)
	}
	if tier < 0 || tier >= s.tierCount {
		return Range{}, fmt.Errorf("%w: tier %d not in [0, %d)", errs.ErrTierConfiguration, tier, s.tierCount)
	}

	bb := s.tiers[tier]
	if s.maxTierBytes > 0 && bb.Len()+len(data) > s.maxTierBytes {
		return Range{}, fmt.Errorf("%w: tier %d holds %d bytes, limit %d, append %d",
			errs.ErrTierCapacityExceeded, tier, bb.Len(), s.maxTierBytes, len(data))
	}

	tx.touch(tier, bb.Len())
	off := bb.Append(data)

	return Range{Offset: uint64(off), Length: uint64(len(data))}, nil //nolint: gosec
}

// Advance moves the cursor to the next tier, wrapping to 0, and returns the
// new cursor.
func (tx *Tx) Advance() (int, error) {
	tx.checkOpen()
	s := tx.s

	if s.state != StateActive {
		return 0, fmt.Errorf("%w: tier store not initialized", errs.ErrTierConfiguration)
	}
	s.cursor = (s.cursor + 1) % s.tierCount

	return s.cursor, nil
}

func (tx *Tx) checkOpen() {
	if tx.closed {
		panic("tierstore: write transaction used after Update returned")
	}
}

// touch records the length of a tier before its first write in this tx.
func (tx *Tx) touch(tier, length int) {
	for _, u := range tx.undo {
		if u.tier == tier {
			return
		}
	}
	tx.undo = append(tx.undo, undoEntry{tier: tier, len: length})
}

func (tx *Tx) rollback() {
	s := tx.s
	if tx.initialized {
		s.deactivate()
		return
	}
	if s.state != StateActive {
		return
	}

	for _, u := range tx.undo {
		s.tiers[u.tier].Truncate(u.len)
	}
	s.cursor = tx.prevCursor
}

func (tx *Tx) publish() {
	s := tx.s
	if tx.initialized {
		s.logger.Info("tier store initialized",
			zap.Int("tier_count", s.tierCount),
			zap.Uint64("epoch", s.epoch),
		)
	}
	for _, u := range tx.undo {
		s.metrics.SetTierBytes(u.tier, s.tiers[u.tier].Len())
	}
}

func (s *Store) tierLen(tier int) (int, error) {
	if s.state != StateActive || tier < 0 || tier >= s.tierCount {
		return 0, fmt.Errorf("%w: tier %d does not exist", errs.ErrTierDataMissing, tier)
	}

	return s.tiers[tier].Len(), nil
}

func (s *Store) read(tier int, r Range) ([]byte, error) {
	n, err := s.tierLen(tier)
	if err != nil {
		return nil, err
	}
	if r.End() < r.Offset || r.End() > uint64(n) { //nolint: gosec
		return nil, fmt.Errorf("%w: range %s past end of tier %d (%d bytes)", errs.ErrTierDataMissing, r, tier, n)
	}

	return s.tiers[tier].Slice(int(r.Offset), int(r.End())), nil //nolint: gosec
}
