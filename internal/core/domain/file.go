package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// FileDescriptor is one entry of the inventory supplied by a crawler.
// The core never traverses the filesystem itself.
type FileDescriptor struct {
	// Path is the absolute path of the file.
	Path string

	// Size is the declared byte size.
	Size int64

	// Created is the creation time, if the crawler knows it.
	Created time.Time

	// Modified is the last modification time.
	Modified time.Time

	// MediaType is the detected MIME type.
	MediaType string
}

// Name returns the base name of the file.
func (d FileDescriptor) Name() string {
	return filepath.Base(d.Path)
}

// Extension returns the lower-case extension including the dot.
func (d FileDescriptor) Extension() string {
	return strings.ToLower(filepath.Ext(d.Path))
}

// FileRecord is one fingerprinted observation of a file.
// Identity is (Path, Fingerprint) at observation time. A record is never
// mutated; re-observing a path produces a fresh record.
type FileRecord struct {
	FileDescriptor

	// Fingerprint is the hex sha256 digest of the file's bytes.
	Fingerprint string

	// NearFingerprint is the 64-bit SimHash of the extracted text.
	// Only meaningful when HasNearFingerprint is true.
	NearFingerprint uint64

	// HasNearFingerprint is false for binary or unsupported types.
	HasNearFingerprint bool

	// TextSample is a bounded prefix of the extracted text.
	TextSample string

	// Metadata holds extracted attributes such as author, sender,
	// recipients and subject.
	Metadata map[string]string

	// ObservedAt is when the record was computed.
	ObservedAt time.Time
}

// Metadata keys populated by text extractors.
const (
	MetaAuthor     = "author"
	MetaTitle      = "title"
	MetaSender     = "sender"
	MetaRecipients = "recipients"
	MetaSubject    = "subject"
	MetaPageCount  = "page_count"
)

// Attribute returns a metadata value or a built-in attribute of the record.
func (r *FileRecord) Attribute(key string) (string, bool) {
	if v, ok := r.Metadata[key]; ok {
		return v, true
	}
	switch key {
	case "media_type":
		return r.MediaType, r.MediaType != ""
	case "extension":
		return r.Extension(), r.Extension() != ""
	case "name":
		return r.Name(), true
	}
	return "", false
}

// RawFile is the input to a text extractor: the file's bytes plus what
// is known about it.
type RawFile struct {
	Path      string
	MediaType string
	Content   []byte
}

// Extraction is the output of a text extractor.
type Extraction struct {
	Text     string
	Metadata map[string]string
}

// Media type families used for near-duplicate bucketing.
const (
	FamilyDocument = "document"
	FamilyText     = "text"
	FamilyEmail    = "email"
	FamilyBinary   = "binary"
)

var textBearingTypes = map[string]string{
	"application/pdf": FamilyDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FamilyDocument,
	"application/msword": FamilyDocument,
	"application/rtf":    FamilyDocument,
	"text/rtf":           FamilyDocument,
	"text/plain":         FamilyText,
	"text/markdown":      FamilyText,
	"text/x-markdown":    FamilyText,
	"text/html":          FamilyText,
	"text/csv":           FamilyText,
	"message/rfc822":     FamilyEmail,
}

var extensionTypes = map[string]string{
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":      "application/msword",
	".rtf":      "application/rtf",
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".csv":      "text/csv",
	".eml":      "message/rfc822",
}

// MediaFamily returns the bucketing family for a media type.
func MediaFamily(mediaType string) string {
	if f, ok := textBearingTypes[normaliseMediaType(mediaType)]; ok {
		return f
	}
	return FamilyBinary
}

// IsTextBearing reports whether text can be extracted from the media type.
func IsTextBearing(mediaType string) bool {
	return MediaFamily(mediaType) != FamilyBinary
}

// MediaTypeForExtension returns the known text-bearing media type for an
// extension, or an empty string.
func MediaTypeForExtension(ext string) string {
	return extensionTypes[strings.ToLower(ext)]
}

func normaliseMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
