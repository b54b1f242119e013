package driving

import "github.com/custodia-labs/archivist/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get resolves current settings from configuration and defaults.
	Get() (*domain.Settings, error)

	// Set validates and persists one configuration key.
	Set(key, value string) error
}
