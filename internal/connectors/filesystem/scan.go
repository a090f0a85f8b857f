package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure Crawler implements the interface.
var _ driven.Producer = (*Crawler)(nil)

// Crawler walks directory trees once and emits every regular file.
type Crawler struct {
	roots   []string
	exclude []string
	now     func() time.Time
}

// NewCrawler creates a crawler over roots. Paths under any exclude root
// are not emitted.
func NewCrawler(roots []string, exclude ...string) *Crawler {
	return &Crawler{
		roots:   roots,
		exclude: cleanRoots(exclude),
		now:     time.Now,
	}
}

// Name identifies the producer in logs.
func (c *Crawler) Name() string {
	return "scan " + strings.Join(c.roots, ",")
}

// Kind is stamped on every arrival.
func (c *Crawler) Kind() domain.ProducerKind {
	return domain.ProducerScan
}

// Produce walks each root in turn. Unreadable entries are reported on the
// error channel and skipped.
func (c *Crawler) Produce(ctx context.Context) (<-chan domain.Arrival, <-chan error) {
	arrivals := make(chan domain.Arrival)
	errs := make(chan error, 16)

	go func() {
		defer close(arrivals)
		defer close(errs)

		for _, root := range c.roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				sendErr(ctx, errs, fmt.Errorf("root path error: %w", err))
				continue
			}
			err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if err != nil {
					if path == abs {
						return fmt.Errorf("root path error: %w", err)
					}
					sendErr(ctx, errs, err)
					return nil
				}
				if path != abs && isHidden(d.Name()) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if excluded(path, c.exclude) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if !d.Type().IsRegular() {
					return nil
				}

				info, err := d.Info()
				if err != nil {
					sendErr(ctx, errs, err)
					return nil
				}
				select {
				case arrivals <- domain.Arrival{
					Kind:       domain.ProducerScan,
					Descriptor: descriptorFor(path, info),
					ObservedAt: c.now(),
				}:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				sendErr(ctx, errs, err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return arrivals, errs
}

func descriptorFor(path string, info fs.FileInfo) domain.FileDescriptor {
	return domain.FileDescriptor{
		Path:      path,
		Size:      info.Size(),
		Modified:  info.ModTime(),
		MediaType: DetectMediaType(path),
	}
}

func sendErr(ctx context.Context, errs chan<- error, err error) {
	select {
	case errs <- err:
	case <-ctx.Done():
	}
}

func cleanRoots(roots []string) []string {
	var out []string
	for _, r := range roots {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		out = append(out, filepath.Clean(r))
	}
	return out
}

// excluded reports whether path is one of roots or lies beneath one.
func excluded(path string, roots []string) bool {
	for _, r := range roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
