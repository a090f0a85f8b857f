// Package extractors provides the text extractor registry and, in its
// subpackages, one TextExtractor per document format. Each extractor
// knows how to pull text and metadata out of a specific media type.
//
// Extractors are registered with the Registry at startup.
package extractors
