// Package compress provides the codecs applied to tier segments.
//
// A segment is the slice of an array that one compress call stores in one
// tier. After the optional byte shuffle from the encoding package, each
// segment is passed through one Codec:
//
//   - None: stored unchanged
//   - Zstd: best ratio, moderate speed
//   - S2: balanced speed and ratio
//   - LZ4: fastest decompression
//
// The codec for a segment is chosen per tier, so different tiers may apply
// different transforms to the same array. The codec type is written into the
// segment table of the encoded buffer and decoders select the matching codec
// from it.
//
// All codecs in this package are stateless values and safe for concurrent
// use; encoder and decoder state is pooled internally.
package compress
