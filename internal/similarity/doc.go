// Package similarity provides the locality-sensitive primitives used for
// near-duplicate detection: a 64-bit SimHash over word tokens, LSH band
// keys for pre-bucketing, and normalised file-name similarity.
package similarity
