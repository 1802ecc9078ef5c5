package tierstore

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/arloliu/sirius/errs"
	"github.com/arloliu/sirius/internal/hash"
	"github.com/arloliu/sirius/section"
)

const (
	snapshotVersion = 2

	epochRangeSize = 16
	// maxEpochRanges bounds the restored windows carried by one snapshot.
	maxEpochRanges = 4096
)

var (
	bucketState = []byte("state")
	bucketTiers = []byte("tiers")
	bucketSums  = []byte("checksums")

	keyVersion   = []byte("version")
	keyTierCount = []byte("tier_count")
	keyCursor    = []byte("cursor")
	keyEpoch     = []byte("epoch")
	keyEpochs    = []byte("epochs")
)

// SaveSnapshot writes the tier count, cursor, accepted epochs and every tier
// buffer with its xxHash64 to a bbolt file at path, replacing any previous
// snapshot in it. After a successful save the store appends in a new epoch.
//
// Returns errs.ErrTierConfiguration if the store is not Active.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("%w: cannot snapshot an uninitialized tier store", errs.ErrTierConfiguration)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("opening snapshot db: %w", err)
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketState, bucketTiers, bucketSums} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}

		st, err := tx.CreateBucket(bucketState)
		if err != nil {
			return err
		}
		for k, v := range map[string]uint64{
			string(keyVersion):   snapshotVersion,
			string(keyTierCount): uint64(s.tierCount), //nolint: gosec
			string(keyCursor):    uint64(s.cursor),    //nolint: gosec
			string(keyEpoch):     s.epoch,
		} {
			if err := st.Put([]byte(k), uint64ToBytes(v)); err != nil {
				return err
			}
		}
		if err := st.Put(keyEpochs, encodeEpochRanges(s.epochRanges())); err != nil {
			return err
		}

		tb, err := tx.CreateBucket(bucketTiers)
		if err != nil {
			return err
		}
		sb, err := tx.CreateBucket(bucketSums)
		if err != nil {
			return err
		}
		for i, bb := range s.tiers {
			data := bb.Bytes()
			if data == nil {
				data = []byte{}
			}
			key := uint64ToBytes(uint64(i)) //nolint: gosec
			if err := tb.Put(key, data); err != nil {
				return err
			}
			if err := sb.Put(key, uint64ToBytes(hash.Checksum(data))); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	saved := s.epoch
	s.epoch++

	s.logger.Info("tier snapshot saved",
		zap.String("path", path),
		zap.Int("tier_count", s.tierCount),
		zap.Uint64("saved_epoch", saved),
		zap.Uint64("epoch", s.epoch),
	)

	return nil
}

// LoadSnapshot restores a snapshot written by SaveSnapshot. The store must
// be Uninitialized; metadata encoded before the snapshot was saved decodes
// against the restored store. Appends after the load run in an epoch newer
// than any the store or the snapshot has used.
//
// Returns errs.ErrTierConfigurationConflict if the store is Active,
// errs.ErrSnapshotCorrupt if the file fails validation and
// errs.ErrTierCapacityExceeded if a tier exceeds the store's byte limit.
func (s *Store) LoadSnapshot(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		return fmt.Errorf("%w: cannot load a snapshot into an active tier store", errs.ErrTierConfigurationConflict)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("opening snapshot db: %w", err)
	}
	defer db.Close()

	var (
		tierCount, cursor int
		ranges            []EpochRange
		tiers             [][]byte
	)
	err = db.View(func(tx *bbolt.Tx) error {
		st := tx.Bucket(bucketState)
		tb := tx.Bucket(bucketTiers)
		sb := tx.Bucket(bucketSums)
		if st == nil || tb == nil || sb == nil {
			return fmt.Errorf("%w: missing buckets", errs.ErrSnapshotCorrupt)
		}

		vals := make(map[string]uint64, 4)
		for _, k := range [][]byte{keyVersion, keyTierCount, keyCursor, keyEpoch} {
			v := st.Get(k)
			if len(v) != 8 {
				return fmt.Errorf("%w: missing %s", errs.ErrSnapshotCorrupt, k)
			}
			vals[string(k)] = binary.BigEndian.Uint64(v)
		}
		if vals[string(keyVersion)] != snapshotVersion {
			return fmt.Errorf("%w: unsupported version %d", errs.ErrSnapshotCorrupt, vals[string(keyVersion)])
		}
		if n := vals[string(keyTierCount)]; n < 1 || n > section.MaxSegments {
			return fmt.Errorf("%w: tier count %d", errs.ErrSnapshotCorrupt, n)
		}
		tierCount = int(vals[string(keyTierCount)]) //nolint: gosec
		if vals[string(keyCursor)] >= uint64(tierCount) { //nolint: gosec
			return fmt.Errorf("%w: cursor %d", errs.ErrSnapshotCorrupt, vals[string(keyCursor)])
		}
		cursor = int(vals[string(keyCursor)]) //nolint: gosec
		decoded, err := decodeEpochRanges(st.Get(keyEpochs))
		if err != nil {
			return err
		}
		ranges = decoded
		if last := ranges[len(ranges)-1].Last; last != vals[string(keyEpoch)] {
			return fmt.Errorf("%w: epoch %d outside its windows", errs.ErrSnapshotCorrupt, vals[string(keyEpoch)])
		}

		tiers = make([][]byte, tierCount)
		seen := 0
		c := tb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 || binary.BigEndian.Uint64(k) >= uint64(tierCount) { //nolint: gosec
				return fmt.Errorf("%w: unexpected tier key %x", errs.ErrSnapshotCorrupt, k)
			}
			sum := sb.Get(k)
			if len(sum) != 8 || binary.BigEndian.Uint64(sum) != hash.Checksum(v) {
				return fmt.Errorf("%w: tier %d checksum mismatch", errs.ErrSnapshotCorrupt, binary.BigEndian.Uint64(k))
			}
			if s.maxTierBytes > 0 && len(v) > s.maxTierBytes {
				return fmt.Errorf("%w: tier %d holds %d bytes, limit %d",
					errs.ErrTierCapacityExceeded, binary.BigEndian.Uint64(k), len(v), s.maxTierBytes)
			}
			// bbolt values are only valid inside the transaction
			tiers[binary.BigEndian.Uint64(k)] = append([]byte(nil), v...)
			seen++
		}
		if seen != tierCount {
			return fmt.Errorf("%w: %d of %d tiers present", errs.ErrSnapshotCorrupt, seen, tierCount)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	s.activate(tierCount)
	s.cursor = cursor
	s.restored = ranges
	for _, r := range ranges {
		s.epoch = max(s.epoch, r.Last)
	}
	s.epoch++
	s.liveFrom = s.epoch
	for i, data := range tiers {
		s.tiers[i].B = data
		s.metrics.SetTierBytes(i, len(data))
	}

	s.logger.Info("tier snapshot loaded",
		zap.String("path", path),
		zap.Int("tier_count", tierCount),
		zap.Int("epoch_ranges", len(ranges)),
		zap.Uint64("epoch", s.epoch),
	)

	return nil
}

func encodeEpochRanges(ranges []EpochRange) []byte {
	b := make([]byte, 0, len(ranges)*epochRangeSize)
	for _, r := range ranges {
		b = binary.BigEndian.AppendUint64(b, r.First)
		b = binary.BigEndian.AppendUint64(b, r.Last)
	}

	return b
}

func decodeEpochRanges(b []byte) ([]EpochRange, error) {
	if len(b) == 0 || len(b)%epochRangeSize != 0 || len(b)/epochRangeSize > maxEpochRanges {
		return nil, fmt.Errorf("%w: epoch windows of %d bytes", errs.ErrSnapshotCorrupt, len(b))
	}

	ranges := make([]EpochRange, len(b)/epochRangeSize)
	for i := range ranges {
		off := i * epochRangeSize
		ranges[i] = EpochRange{
			First: binary.BigEndian.Uint64(b[off:]),
			Last:  binary.BigEndian.Uint64(b[off+8:]),
		}
		if ranges[i].First > ranges[i].Last {
			return nil, fmt.Errorf("%w: epoch window %d..%d", errs.ErrSnapshotCorrupt, ranges[i].First, ranges[i].Last)
		}
	}

	return ranges, nil
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)

	return b
}
