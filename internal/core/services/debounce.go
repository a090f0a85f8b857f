package services

import (
	"io/fs"
	"sync"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// Debouncer holds watch arrivals until a file has stopped changing for a
// quiet period. A file whose size or modification time moved during the
// period is re-armed; a file that vanished is dropped.
type Debouncer struct {
	stat  func(path string) (fs.FileInfo, error)
	quiet time.Duration
	emit  func(arrival domain.Arrival, settled bool)

	mu      sync.Mutex
	entries map[string]*debounceEntry
	stopped bool
}

type debounceEntry struct {
	arrival  domain.Arrival
	size     int64
	modified time.Time
	timer    *time.Timer
}

// NewDebouncer creates a debouncer. emit is called once per tracked path,
// with settled false when the arrival was dropped.
func NewDebouncer(
	stat func(path string) (fs.FileInfo, error),
	quiet time.Duration,
	emit func(arrival domain.Arrival, settled bool),
) *Debouncer {
	return &Debouncer{
		stat:    stat,
		quiet:   quiet,
		emit:    emit,
		entries: make(map[string]*debounceEntry),
	}
}

// Observe starts or restarts the quiet period for an arrival.
// Returns true when the path was not already being tracked.
func (d *Debouncer) Observe(arrival domain.Arrival) bool {
	path := arrival.Descriptor.Path

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	if e, ok := d.entries[path]; ok {
		e.arrival.Descriptor = arrival.Descriptor
		e.timer.Reset(d.quiet)
		return false
	}

	e := &debounceEntry{arrival: arrival}
	if info, err := d.stat(path); err == nil {
		e.size = info.Size()
		e.modified = info.ModTime()
	}
	e.timer = time.AfterFunc(d.quiet, func() { d.fire(path) })
	d.entries[path] = e
	return true
}

// Pending returns the number of paths awaiting their quiet period.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Stop cancels every pending timer and drops the tracked arrivals.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	var dropped []domain.Arrival
	for path, e := range d.entries {
		e.timer.Stop()
		dropped = append(dropped, e.arrival)
		delete(d.entries, path)
	}
	d.mu.Unlock()

	for _, a := range dropped {
		d.emit(a, false)
	}
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	e, ok := d.entries[path]
	if !ok {
		d.mu.Unlock()
		return
	}

	info, err := d.stat(path)
	if err != nil {
		delete(d.entries, path)
		d.mu.Unlock()
		d.emit(e.arrival, false)
		return
	}
	if info.Size() != e.size || !info.ModTime().Equal(e.modified) {
		e.size = info.Size()
		e.modified = info.ModTime()
		e.timer.Reset(d.quiet)
		d.mu.Unlock()
		return
	}

	delete(d.entries, path)
	d.mu.Unlock()

	a := e.arrival
	a.Descriptor.Size = info.Size()
	a.Descriptor.Modified = info.ModTime()
	d.emit(a, true)
}
