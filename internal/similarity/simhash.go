package similarity

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// SignatureBits is the width of a SimHash signature.
const SignatureBits = 64

// SimHash computes a 64-bit signature over the lower-cased word tokens of
// text. Documents sharing most tokens yield signatures with a small
// Hamming distance. ok is false when text has no tokens.
func SimHash(text string) (sig uint64, ok bool) {
	var weights [SignatureBits]int
	var tokens int

	forEachToken(text, func(tok string) {
		tokens++
		h := xxhash.Sum64String(tok)
		for i := 0; i < SignatureBits; i++ {
			if h&(1<<uint(i)) != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	})
	if tokens == 0 {
		return 0, false
	}

	for i, w := range weights {
		if w > 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig, true
}

// Hamming returns the number of differing bits.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// TextSimilarity maps the Hamming distance of two signatures onto [0,1].
func TextSimilarity(a, b uint64) float64 {
	return 1 - float64(Hamming(a, b))/SignatureBits
}

// forEachToken calls fn for every maximal run of letters, digits and
// underscores, lower-cased.
func forEachToken(text string, fn func(string)) {
	start := -1
	for i, r := range text {
		word := r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			fn(strings.ToLower(text[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		fn(strings.ToLower(text[start:]))
	}
}
