package gmail

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CursorVersion is the current cursor format version.
const CursorVersion = 1

// cursorFile is the cursor's name inside the spool directory.
const cursorFile = ".cursor"

// ErrInvalidCursor indicates the cursor could not be decoded.
var ErrInvalidCursor = errors.New("gmail: invalid cursor format")

// Cursor tracks polling state using the History API.
type Cursor struct {
	// Version is the cursor format version for future compatibility.
	Version int `json:"v"`
	// HistoryID is the mailbox history ID at the end of the last poll.
	HistoryID uint64 `json:"history_id"`
}

// NewCursor creates a new empty cursor.
func NewCursor() *Cursor {
	return &Cursor{
		Version: CursorVersion,
	}
}

// Encode serialises the cursor to a base64 string for storage.
func (c *Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor deserializes a cursor from a base64 string.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return NewCursor(), nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}

	if cursor.Version > CursorVersion {
		return nil, ErrInvalidCursor
	}

	return &cursor, nil
}

// IsEmpty returns true if the cursor has no poll state.
func (c *Cursor) IsEmpty() bool {
	return c.HistoryID == 0
}

// loadCursor reads the cursor from the spool directory. A missing or
// corrupt cursor starts over with a full listing; spooled files are
// never written twice, so that only costs API calls.
func loadCursor(spoolDir string) *Cursor {
	data, err := os.ReadFile(filepath.Join(spoolDir, cursorFile))
	if err != nil {
		return NewCursor()
	}
	c, err := DecodeCursor(string(data))
	if err != nil {
		return NewCursor()
	}
	return c
}

func saveCursor(spoolDir string, c *Cursor) error {
	path := filepath.Join(spoolDir, cursorFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(c.Encode()), 0o600); err != nil {
		return fmt.Errorf("writing cursor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing cursor: %w", err)
	}
	return nil
}
