// Package inventory reads and writes the inventory CSV: one row per file
// with the columns filepath, filename, extension, size_bytes,
// created_date, modified_date, sha256 and mime_type.
package inventory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/filer/internal/connectors/filesystem"
	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Columns is the header written and expected, in order.
var Columns = []string{
	"filepath",
	"filename",
	"extension",
	"size_bytes",
	"created_date",
	"modified_date",
	"sha256",
	"mime_type",
}

// ErrMissingColumn is returned when the header lacks the filepath column.
var ErrMissingColumn = errors.New("inventory: missing filepath column")

// Accepted date layouts. Dates without a zone are local time.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Ensure Reader implements the interface.
var _ driven.Producer = (*Reader)(nil)

// Reader emits one arrival per inventory row. The sha256 column is not
// trusted; the fingerprint engine hashes the bytes itself.
type Reader struct {
	path string
	now  func() time.Time
}

// NewReader creates a producer over the CSV at path.
func NewReader(path string) *Reader {
	return &Reader{path: path, now: time.Now}
}

// Name identifies the producer in logs.
func (r *Reader) Name() string {
	return "inventory " + r.path
}

// Kind is stamped on every arrival.
func (r *Reader) Kind() domain.ProducerKind {
	return domain.ProducerScan
}

// Produce streams the file's rows. Malformed rows are reported on the
// error channel and skipped; an unreadable file or header ends production.
func (r *Reader) Produce(ctx context.Context) (<-chan domain.Arrival, <-chan error) {
	arrivals := make(chan domain.Arrival)
	errs := make(chan error, 16)

	go func() {
		defer close(arrivals)
		defer close(errs)

		f, err := os.Open(r.path)
		if err != nil {
			errs <- fmt.Errorf("opening inventory: %w", err)
			return
		}
		defer f.Close()

		err = Decode(f, func(d domain.FileDescriptor) error {
			select {
			case arrivals <- domain.Arrival{Kind: domain.ProducerScan, Descriptor: d, ObservedAt: r.now()}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(err error) {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return arrivals, errs
}

// Decode reads inventory rows from in, calling emit for every valid row
// and bad for every malformed one. Columns are matched by header name so
// extra or reordered columns are tolerated. Relative paths are made
// absolute against the working directory.
func Decode(in io.Reader, emit func(domain.FileDescriptor) error, bad func(error)) error {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("reading inventory header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := index["filepath"]; !ok {
		return ErrMissingColumn
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			bad(fmt.Errorf("inventory line %d: %w", line, err))
			continue
		}

		d, err := parseRow(func(name string) string { return field(rec, name) })
		if err != nil {
			bad(fmt.Errorf("inventory line %d: %w", line, err))
			continue
		}
		if err := emit(d); err != nil {
			return err
		}
	}
}

func parseRow(field func(string) string) (domain.FileDescriptor, error) {
	path := field("filepath")
	if path == "" {
		return domain.FileDescriptor{}, fmt.Errorf("%w: empty filepath", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.FileDescriptor{}, err
	}

	d := domain.FileDescriptor{Path: abs}
	if s := field("size_bytes"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return domain.FileDescriptor{}, fmt.Errorf("%w: size_bytes %q", domain.ErrInvalidInput, s)
		}
		d.Size = n
	}
	if d.Created, err = parseDate(field("created_date")); err != nil {
		return domain.FileDescriptor{}, err
	}
	if d.Modified, err = parseDate(field("modified_date")); err != nil {
		return domain.FileDescriptor{}, err
	}

	d.MediaType = field("mime_type")
	if d.MediaType == "" || d.MediaType == "application/octet-stream" || d.MediaType == HashError {
		d.MediaType = filesystem.DetectMediaType(abs)
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", domain.ErrInvalidInput, s)
}
