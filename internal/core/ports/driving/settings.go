package driving

import "github.com/custodia-labs/filer/internal/core/domain"

// SettingsService resolves pipeline settings from configuration.
type SettingsService interface {
	// Get returns the current settings with defaults applied.
	Get() (*domain.Settings, error)

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}
