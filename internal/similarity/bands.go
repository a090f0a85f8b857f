package similarity

import "fmt"

// BandKeys splits a signature into n equal bands and returns one key per
// band. Two signatures sharing any key are candidates for full scoring.
// n must divide 64.
func BandKeys(sig uint64, n int) []uint64 {
	if n <= 0 || SignatureBits%n != 0 {
		panic(fmt.Sprintf("similarity: band count %d does not divide %d", n, SignatureBits))
	}
	width := SignatureBits / n
	mask := uint64(1)<<uint(width) - 1
	if width == SignatureBits {
		mask = ^uint64(0)
	}

	keys := make([]uint64, n)
	for i := 0; i < n; i++ {
		band := (sig >> uint(i*width)) & mask
		// Band index occupies the high byte so equal values in different
		// bands never collide. Full-width signatures need no index.
		if width <= 56 {
			keys[i] = uint64(i)<<56 | band
		} else {
			keys[i] = band
		}
	}
	return keys
}
