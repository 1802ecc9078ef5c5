package encoding

// Shuffle transposes src, viewed as consecutive elements of elemSize bytes,
// into byte planes: byte 0 of every element, then byte 1 of every element,
// and so on. Bytes of a trailing partial element are copied unchanged.
//
// For 16-bit values [A0 A1 B0 B1 C0 C1] the result is [A0 B0 C0 A1 B1 C1].
//
// dst must be at least len(src) bytes and must not overlap src.
func Shuffle(dst, src []byte, elemSize int) {
	if elemSize <= 1 || len(src) < 2*elemSize {
		copy(dst, src)
		return
	}

	n := len(src) / elemSize
	for b := range elemSize {
		plane := dst[b*n : (b+1)*n]
		for i := range plane {
			plane[i] = src[i*elemSize+b]
		}
	}

	tail := n * elemSize
	copy(dst[tail:len(src)], src[tail:])
}

// Unshuffle reverses Shuffle.
func Unshuffle(dst, src []byte, elemSize int) {
	if elemSize <= 1 || len(src) < 2*elemSize {
		copy(dst, src)
		return
	}

	n := len(src) / elemSize
	for b := range elemSize {
		plane := src[b*n : (b+1)*n]
		for i, v := range plane {
			dst[i*elemSize+b] = v
		}
	}

	tail := n * elemSize
	copy(dst[tail:len(src)], src[tail:])
}
