package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/logger"
)

// Ensure Watcher implements the interface.
var _ driven.Producer = (*Watcher)(nil)

// Watcher emits an arrival whenever a file under its roots is created or
// written. Arrivals are raw; the coordinator debounces them.
type Watcher struct {
	roots   []string
	exclude []string
	now     func() time.Time
}

// NewWatcher creates a recursive watch over roots.
func NewWatcher(roots []string, exclude ...string) *Watcher {
	return &Watcher{
		roots:   roots,
		exclude: cleanRoots(exclude),
		now:     time.Now,
	}
}

// Name identifies the producer in logs.
func (w *Watcher) Name() string {
	return "watch " + strings.Join(w.roots, ",")
}

// Kind is stamped on every arrival.
func (w *Watcher) Kind() domain.ProducerKind {
	return domain.ProducerWatch
}

// Produce watches until ctx is cancelled. A root that cannot be watched
// is reported on the error channel; if none can, production ends.
func (w *Watcher) Produce(ctx context.Context) (<-chan domain.Arrival, <-chan error) {
	arrivals := make(chan domain.Arrival)
	errs := make(chan error, 16)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errs <- fmt.Errorf("creating watcher: %w", err)
		close(errs)
		close(arrivals)
		return arrivals, errs
	}

	go func() {
		defer close(arrivals)
		defer close(errs)
		defer watcher.Close()

		watched := 0
		for _, root := range w.roots {
			abs, err := filepath.Abs(root)
			if err == nil {
				_, err = os.Stat(abs)
			}
			if err != nil {
				sendErr(ctx, errs, fmt.Errorf("root path error: %w", err))
				continue
			}
			if err := w.addTree(watcher, abs); err != nil {
				sendErr(ctx, errs, err)
				continue
			}
			watched++
		}
		if watched == 0 {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				arrival, ok := w.handleFsEvent(watcher, event)
				if !ok {
					continue
				}
				select {
				case arrivals <- arrival:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				sendErr(ctx, errs, err)
			}
		}
	}()

	return arrivals, errs
}

// addTree watches dir and every visible subdirectory.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (isHidden(d.Name()) || excluded(path, w.exclude)) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// handleFsEvent turns a create or write into an arrival. New directories
// are added to the watch; removals and renames are ignored since the
// file is no longer there to process.
func (w *Watcher) handleFsEvent(watcher *fsnotify.Watcher, event fsnotify.Event) (domain.Arrival, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return domain.Arrival{}, false
	}
	if isHidden(filepath.Base(event.Name)) || excluded(event.Name, w.exclude) {
		return domain.Arrival{}, false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("watch: stat %s: %v", event.Name, err)
		}
		return domain.Arrival{}, false
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && watcher != nil {
			if err := w.addTree(watcher, event.Name); err != nil {
				logger.Warn("watch: %v", err)
			}
		}
		return domain.Arrival{}, false
	}
	if !info.Mode().IsRegular() {
		return domain.Arrival{}, false
	}

	return domain.Arrival{
		Kind:       domain.ProducerWatch,
		Descriptor: descriptorFor(event.Name, info),
		ObservedAt: w.now(),
	}, true
}
