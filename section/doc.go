// Package section defines the binary layout of the metadata record that a
// tiered compress call writes into the caller's output buffer.
//
// The record never carries array bytes. It describes where the array's
// segments live inside the process-wide tier buffers:
//
//	┌──────────────────────────────────────────────────────────┐
//	│ Header (40 bytes, fixed)                                 │
//	│  - Flag (2 bytes, always little-endian): magic, shuffle, │
//	│    endianness of the remaining fields                    │
//	│  - DataType, Placement (1 byte each)                     │
//	│  - NumDims, SegmentCount (2 bytes each)                  │
//	│  - Epoch, ElementCount, RawSize (8 bytes each)           │
//	│  - Checksum (8 bytes): xxHash64 of everything else       │
//	├──────────────────────────────────────────────────────────┤
//	│ Dimension table (NumDims × 8 bytes)                      │
//	├──────────────────────────────────────────────────────────┤
//	│ Segment table (SegmentCount × 32 bytes)                  │
//	│  - Tier, Compression, reserved                           │
//	│  - Offset, StoredLength, RawLength                       │
//	└──────────────────────────────────────────────────────────┘
//
// The size of a record is known before compression runs, see EncodedSize.
// ParseMetadata accepts buffers longer than the record and ignores the tail.
package section
