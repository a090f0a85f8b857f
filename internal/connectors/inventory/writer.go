package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
)

const dateLayout = "2006-01-02T15:04:05"

// HashError marks a row whose file could not be hashed.
const HashError = "ERROR"

// Writer writes inventory rows.
type Writer struct {
	w      *csv.Writer
	header bool
}

// NewWriter creates a writer; the header is written with the first row.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

// Write appends one row. sha256 may be empty or HashError for unreadable files.
func (w *Writer) Write(d domain.FileDescriptor, sha256 string) error {
	if !w.header {
		if err := w.w.Write(Columns); err != nil {
			return err
		}
		w.header = true
	}
	return w.w.Write([]string{
		d.Path,
		d.Name(),
		d.Extension(),
		strconv.FormatInt(d.Size, 10),
		formatDate(d.Created),
		formatDate(d.Modified),
		sha256,
		d.MediaType,
	})
}

// Flush writes buffered rows, writing the header if nothing else was.
func (w *Writer) Flush() error {
	if !w.header {
		if err := w.w.Write(Columns); err != nil {
			return err
		}
		w.header = true
	}
	w.w.Flush()
	return w.w.Error()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(dateLayout)
}
