// Package tierstore holds the tier buffers shared by every tiered operator in
// a process.
//
// A Store is Uninitialized until the first Init (or LoadSnapshot) fixes the
// tier count. While Active, tier buffers only grow and the current-tier
// cursor rotates through [0, tierCount). Reset drops every buffer, returns
// the store to Uninitialized and starts a new epoch, so metadata produced
// before the reset no longer resolves.
//
// Epochs are never handed out twice by one store. A store accepts the
// epochs of its live window, which Reset restarts, plus the windows restored
// by LoadSnapshot. Saving or loading a snapshot moves appends to a fresh
// epoch, so a record written after a snapshot never matches data restored
// from it.
//
// All access goes through one sync.RWMutex. Update and View expose that lock
// as write and read transactions.
package tierstore

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/internal/options"
	"github.com/arloliu/sirius/internal/pool"
	"github.com/arloliu/sirius/metrics"
)

// State is the lifecycle state of a Store.
type State uint8

const (
	StateUninitialized State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Range is a byte range inside one tier buffer.
type Range struct {
	Offset uint64
	Length uint64
}

// End returns the exclusive end offset of the range.
func (r Range) End() uint64 {
	return r.Offset + r.Length
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

// EpochRange is an inclusive range of epochs.
type EpochRange struct {
	First uint64
	Last  uint64
}

// Contains reports whether e lies in the range.
func (r EpochRange) Contains(e uint64) bool {
	return e >= r.First && e <= r.Last
}

// Stats is a point-in-time view of a Store.
type Stats struct {
	State     State
	TierCount int
	Current   int
	Epoch     uint64
	TierBytes []int
}

// TotalBytes returns the sum of all tier buffer lengths.
func (s Stats) TotalBytes() int {
	total := 0
	for _, n := range s.TierBytes {
		total += n
	}

	return total
}

// Store is the process-wide tier state. The zero value is not usable; create
// one with New or use Default.
type Store struct {
	mu sync.RWMutex

	state     State
	tierCount int
	tiers     []*pool.ByteBuffer
	cursor    int

	// epoch is the epoch of new appends; liveFrom..epoch is the live window.
	epoch    uint64
	liveFrom uint64
	restored []EpochRange

	maxTierBytes int
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// Option configures a Store.
type Option = options.Option[*Store]

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return options.NoError(func(s *Store) {
		s.metrics = m
	})
}

// WithMaxTierBytes bounds the length of every tier buffer. Zero means no limit.
func WithMaxTierBytes(n int) Option {
	return options.New(func(s *Store) error {
		if n < 0 {
			return fmt.Errorf("%w: negative tier byte limit %d", errs.ErrInvalidParameter, n)
		}
		s.maxTierBytes = n

		return nil
	})
}

// New creates an Uninitialized store.
func New(opts ...Option) (*Store, error) {
	// the top half of the range is left for increments
	epoch := rand.Uint64() >> 1 //nolint: gosec
	s := &Store{
		epoch:    epoch,
		liveFrom: epoch,
		logger:   zap.NewNop(),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

var defaultStore = sync.OnceValue(func() *Store {
	s, _ := New()
	return s
})

// Default returns the process-wide store shared by operators that were not
// given one explicitly.
func Default() *Store {
	return defaultStore()
}

// Update runs fn as a write transaction. If fn returns an error, every
// change made through tx is undone and the error is returned.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	err := fn(tx)
	tx.closed = true
	if err != nil {
		tx.rollback()
		return err
	}
	tx.publish()

	return nil
}

// View runs fn as a read transaction. Slices returned by tx.Read are only
// valid until fn returns.
func (s *Store) View(fn func(tx *ReadTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := &ReadTx{s: s}
	err := fn(tx)
	tx.closed = true

	return err
}

// Init activates the store with tierCount tiers. It is a no-op if the store
// is already Active with the same count.
func (s *Store) Init(tierCount int) error {
	return s.Update(func(tx *Tx) error {
		return tx.Init(tierCount)
	})
}

// Append appends data to a tier buffer and returns where it was written.
func (s *Store) Append(tier int, data []byte) (Range, error) {
	var r Range
	err := s.Update(func(tx *Tx) error {
		var err error
		r, err = tx.Append(tier, data)

		return err
	})

	return r, err
}

// Read returns a copy of the bytes at r in a tier buffer.
func (s *Store) Read(tier int, r Range) ([]byte, error) {
	var out []byte
	err := s.View(func(tx *ReadTx) error {
		b, err := tx.Read(tier, r)
		if err != nil {
			return err
		}
		out = append([]byte(nil), b...)

		return nil
	})

	return out, err
}

// Advance moves the cursor to the next tier and returns the new cursor.
func (s *Store) Advance() (int, error) {
	var cur int
	err := s.Update(func(tx *Tx) error {
		var err error
		cur, err = tx.Advance()

		return err
	})

	return cur, err
}

// Reset drops every tier buffer, clears the cursor, returns the store to
// Uninitialized and starts a new epoch.
//
// Reset must not run while compress or decompress calls are in flight.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevEpoch := s.epoch
	released := 0
	for _, bb := range s.tiers {
		released += bb.Len()
	}

	s.state = StateUninitialized
	s.tierCount = 0
	s.tiers = nil
	s.cursor = 0
	s.restored = nil
	s.epoch++
	s.liveFrom = s.epoch

	s.metrics.ObserveReset()
	s.logger.Info("tier store reset",
		zap.Uint64("prev_epoch", prevEpoch),
		zap.Uint64("epoch", s.epoch),
		zap.Int("released_bytes", released),
	)
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// TierCount returns the tier count, or 0 when Uninitialized.
func (s *Store) TierCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tierCount
}

// Current returns the current-tier cursor.
func (s *Store) Current() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursor
}

// Epoch returns the epoch assigned to new appends.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.epoch
}

// AcceptsEpoch reports whether data written in epoch e is still held by the
// store.
func (s *Store) AcceptsEpoch(e uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.acceptsEpoch(e)
}

func (s *Store) acceptsEpoch(e uint64) bool {
	if s.state != StateActive {
		return false
	}
	if (EpochRange{First: s.liveFrom, Last: s.epoch}).Contains(e) {
		return true
	}
	for _, r := range s.restored {
		if r.Contains(e) {
			return true
		}
	}

	return false
}

// epochRanges returns every accepted epoch window. Caller holds mu.
func (s *Store) epochRanges() []EpochRange {
	ranges := make([]EpochRange, 0, len(s.restored)+1)
	ranges = append(ranges, s.restored...)

	return append(ranges, EpochRange{First: s.liveFrom, Last: s.epoch})
}

// Len returns the length of a tier buffer.
func (s *Store) Len(tier int) (int, error) {
	var n int
	err := s.View(func(tx *ReadTx) error {
		var err error
		n, err = tx.Len(tier)

		return err
	})

	return n, err
}

// Stats returns a snapshot of the store state.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		State:     s.state,
		TierCount: s.tierCount,
		Current:   s.cursor,
		Epoch:     s.epoch,
		TierBytes: make([]int, len(s.tiers)),
	}
	for i, bb := range s.tiers {
		st.TierBytes[i] = bb.Len()
	}

	return st
}

// activate switches the store to Active with empty tiers. Caller holds mu.
func (s *Store) activate(tierCount int) {
	s.state = StateActive
	s.tierCount = tierCount
	s.cursor = 0
	s.tiers = make([]*pool.ByteBuffer, tierCount)
	for i := range s.tiers {
		s.tiers[i] = &pool.ByteBuffer{}
	}
}

func (s *Store) deactivate() {
	s.state = StateUninitialized
	s.tierCount = 0
	s.tiers = nil
	s.cursor = 0
}
