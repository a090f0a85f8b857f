package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/filer/internal/core/domain"
)

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SpoolPath returns the .eml path for a message ID.
func SpoolPath(spoolDir, messageID string) string {
	return filepath.Join(spoolDir, unsafeID.ReplaceAllString(messageID, "_")+".eml")
}

// Spool writes a raw-format message to the spool directory and returns
// its descriptor. The file is created exclusively; a message already
// spooled returns fs.ErrExist so it is not emitted again.
func Spool(spoolDir string, msg *gmail.Message) (domain.FileDescriptor, error) {
	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return domain.FileDescriptor{}, fmt.Errorf("decoding message %s: %w", msg.Id, err)
	}

	path := SpoolPath(spoolDir, msg.Id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return domain.FileDescriptor{}, err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		_ = os.Remove(path)
		return domain.FileDescriptor{}, fmt.Errorf("spooling message %s: %w", msg.Id, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(path)
		return domain.FileDescriptor{}, fmt.Errorf("spooling message %s: %w", msg.Id, err)
	}
	if err := f.Close(); err != nil {
		return domain.FileDescriptor{}, fmt.Errorf("spooling message %s: %w", msg.Id, err)
	}

	received := time.UnixMilli(msg.InternalDate)
	if msg.InternalDate > 0 {
		_ = os.Chtimes(path, received, received)
	}

	d := domain.FileDescriptor{
		Path:      path,
		Size:      int64(len(raw)),
		Modified:  received,
		MediaType: "message/rfc822",
	}
	if msg.InternalDate > 0 {
		d.Created = received
	}
	return d, nil
}

// decodeRaw decodes the base64url raw message, with or without padding.
func decodeRaw(s string) ([]byte, error) {
	if raw, err := base64.URLEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// isSpooled reports whether a message was already written.
func isSpooled(spoolDir, messageID string) bool {
	_, err := os.Stat(SpoolPath(spoolDir, messageID))
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// ShouldSyncMessage checks if a message should be spooled based on config.
func ShouldSyncMessage(labels []string, cfg *Config) bool {
	if !hasRequiredLabel(labels, cfg.LabelIDs) {
		return false
	}
	if !cfg.IncludeSpamTrash && isSpamOrTrash(labels) {
		return false
	}
	return true
}

// hasRequiredLabel checks if any required label is present.
func hasRequiredLabel(msgLabels, requiredLabels []string) bool {
	if len(requiredLabels) == 0 {
		return true
	}
	for _, required := range requiredLabels {
		for _, msgLabel := range msgLabels {
			if required == msgLabel {
				return true
			}
		}
	}
	return false
}

// isSpamOrTrash checks if the message has spam or trash labels.
func isSpamOrTrash(labels []string) bool {
	for _, label := range labels {
		if label == "SPAM" || label == "TRASH" {
			return true
		}
	}
	return false
}
