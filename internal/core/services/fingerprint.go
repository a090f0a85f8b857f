package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/logger"
	"github.com/custodia-labs/filer/internal/similarity"
)

// FingerprintEngine computes the exact and near-duplicate fingerprints of
// a file.
type FingerprintEngine struct {
	fs         driven.FileSystem
	extractors driven.ExtractorRegistry
	cfg        domain.FingerprintSettings
	now        func() time.Time
}

// NewFingerprintEngine creates a fingerprint engine.
// extractors may be nil, in which case no near fingerprints are computed.
func NewFingerprintEngine(
	fs driven.FileSystem,
	extractors driven.ExtractorRegistry,
	cfg domain.FingerprintSettings,
) *FingerprintEngine {
	return &FingerprintEngine{
		fs:         fs,
		extractors: extractors,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Fingerprint reads the file described by d and returns a fresh record.
// Zero-byte and unreadable files fail with domain.ErrUnreadableFile.
func (e *FingerprintEngine) Fingerprint(ctx context.Context, d domain.FileDescriptor) (*domain.FileRecord, error) {
	info, err := e.fs.Stat(d.Path)
	if err != nil {
		return nil, domain.NewFileError("stat", d.Path, errors.Join(domain.ErrUnreadableFile, err))
	}
	if info.IsDir() {
		return nil, domain.NewFileError("stat", d.Path, fmt.Errorf("%w: is a directory", domain.ErrUnreadableFile))
	}
	if info.Size() == 0 {
		return nil, domain.NewFileError("stat", d.Path, fmt.Errorf("%w: zero-byte file", domain.ErrUnreadableFile))
	}

	// The inventory may be stale; the filesystem is authoritative.
	d.Size = info.Size()
	if d.Modified.IsZero() || !info.ModTime().Equal(d.Modified) {
		d.Modified = info.ModTime()
	}
	if d.MediaType == "" {
		d.MediaType = domain.MediaTypeForExtension(d.Extension())
	}

	record := &domain.FileRecord{
		FileDescriptor: d,
		ObservedAt:     e.now(),
	}

	extract := e.extractors != nil &&
		domain.IsTextBearing(d.MediaType) &&
		e.extractors.Supports(d.MediaType) &&
		(e.cfg.MaxExtractBytes <= 0 || d.Size <= e.cfg.MaxExtractBytes)

	if !extract {
		record.Fingerprint, err = e.Hash(ctx, d.Path)
		if err != nil {
			return nil, err
		}
		return record, nil
	}

	content, err := e.readAll(ctx, d.Path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(content)
	record.Fingerprint = hex.EncodeToString(sum[:])

	extraction, err := e.extractors.Extract(ctx, &domain.RawFile{
		Path:      d.Path,
		MediaType: d.MediaType,
		Content:   content,
	})
	if err != nil {
		// Extraction is best effort; the exact fingerprint still stands.
		logger.Warn("text extraction failed for %s: %v", d.Path, err)
		return record, nil
	}

	record.Metadata = extraction.Metadata
	record.TextSample = truncateUTF8(extraction.Text, e.cfg.SampleBytes)
	if sig, ok := similarity.SimHash(extraction.Text); ok {
		record.NearFingerprint = sig
		record.HasNearFingerprint = true
	}

	logger.Debug("fingerprinted %s: %s near=%t", d.Path, record.Fingerprint[:12], record.HasNearFingerprint)
	return record, nil
}

// Hash streams the file at path through sha256.
func (e *FingerprintEngine) Hash(ctx context.Context, path string) (string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", domain.NewFileError("open", path, errors.Join(domain.ErrUnreadableFile, err))
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, &contextReader{ctx: ctx, r: f}); err != nil {
		return "", domain.NewFileError("read", path, classifyReadError(err))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (e *FingerprintEngine) readAll(ctx context.Context, path string) ([]byte, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, domain.NewFileError("open", path, errors.Join(domain.ErrUnreadableFile, err))
	}
	defer f.Close()

	content, err := io.ReadAll(&contextReader{ctx: ctx, r: f})
	if err != nil {
		return nil, domain.NewFileError("read", path, classifyReadError(err))
	}
	return content, nil
}

// classifyReadError maps cancellation onto the retryable transient error.
func classifyReadError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(domain.ErrTransientIO, err)
	}
	return errors.Join(domain.ErrUnreadableFile, err)
}

// contextReader aborts a long read when its context ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
