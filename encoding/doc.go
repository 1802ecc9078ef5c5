// Package encoding implements the reversible byte transforms applied to tier
// segments before they are appended to a tier buffer.
//
// A Transform is a two-stage pipeline:
//
//  1. Shuffle (optional): transpose the segment into byte planes using the
//     element width, so bytes of equal significance sit next to each other.
//  2. Codec: one of the compress package codecs (None, Zstd, S2, LZ4).
//
// Decoding runs the stages in reverse and checks that the segment expands
// back to exactly the raw length recorded in its metadata.
package encoding
