// Package gmail polls a Gmail mailbox and spools new messages as .eml
// files, emitting each spooled file as an arrival.
package gmail

import (
	"github.com/custodia-labs/filer/internal/core/domain"
)

// Config holds mailbox poller configuration.
type Config struct {
	// LabelIDs limits polling to messages carrying any of these labels.
	LabelIDs []string
	// Query is a Gmail search query used for full listings.
	Query string
	// MaxResults is the page size for API requests.
	MaxResults int64
	// IncludeSpamTrash includes spam and trash if true.
	IncludeSpamTrash bool
	// SpoolDir receives one <message-id>.eml file per message.
	SpoolDir string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LabelIDs:   []string{"INBOX"},
		MaxResults: 100,
	}
}

// ConfigFromSettings builds a poller configuration from mailbox settings.
func ConfigFromSettings(s domain.MailboxSettings) *Config {
	cfg := DefaultConfig()
	if len(s.LabelIDs) > 0 {
		cfg.LabelIDs = s.LabelIDs
	}
	cfg.Query = s.Query
	cfg.SpoolDir = s.SpoolDir
	return cfg
}
