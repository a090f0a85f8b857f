package similarity

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// NameSimilarity returns 1 - edit distance / longer length over the
// lower-cased base names without extension.
func NameSimilarity(a, b string) float64 {
	na, nb := stem(a), stem(b)
	longest := utf8.RuneCountInString(na)
	if n := utf8.RuneCountInString(nb); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

// SizeSimilarity returns 1 - |a-b| / max(a,b).
func SizeSimilarity(a, b int64) float64 {
	if a == b {
		return 1
	}
	if a < 0 || b < 0 {
		return 0
	}
	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}
	return 1 - float64(hi-lo)/float64(hi)
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
