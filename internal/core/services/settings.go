package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// EnvRepositoryRoot overrides repository.root from the config file.
const EnvRepositoryRoot = "ARCHIVE_BASE_PATH"

// settingKind is the stored type of a configuration key.
type settingKind int

const (
	kindString settingKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
)

// settingKeys lists every configuration key and its type.
var settingKeys = map[string]settingKind{
	domain.KeyRepositoryRoot:      kindString,
	domain.KeyMaxContentBytes:     kindInt,
	domain.KeyConnectorVersion:    kindString,
	domain.KeyWriterManifest:      kindBool,
	domain.KeyIndexerWorkers:      kindInt,
	domain.KeyVerifyContent:       kindBool,
	domain.KeyStampSidecars:       kindBool,
	domain.KeyMaxRecordsPerSecond: kindFloat,
	domain.KeyIndexInterval:       kindDuration,
	domain.KeySearchDefaultLimit:  kindInt,
}

// SettingKeys returns the configuration keys in sorted order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService resolves settings from the config store over defaults.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
}

// Get resolves current settings. Keys absent from the config keep
// their defaults; ARCHIVE_BASE_PATH wins over repository.root.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()
	cs := s.configStore

	if _, ok := cs.Get(domain.KeyRepositoryRoot); ok {
		settings.RepositoryRoot = cs.GetString(domain.KeyRepositoryRoot)
	}
	if _, ok := cs.Get(domain.KeyMaxContentBytes); ok {
		settings.MaxContentBytes = int64(cs.GetInt(domain.KeyMaxContentBytes))
	}
	if _, ok := cs.Get(domain.KeyConnectorVersion); ok {
		settings.ConnectorVersion = cs.GetString(domain.KeyConnectorVersion)
	}
	if _, ok := cs.Get(domain.KeyWriterManifest); ok {
		settings.Manifest = cs.GetBool(domain.KeyWriterManifest)
	}
	if _, ok := cs.Get(domain.KeyIndexerWorkers); ok {
		settings.IndexerWorkers = cs.GetInt(domain.KeyIndexerWorkers)
	}
	if _, ok := cs.Get(domain.KeyVerifyContent); ok {
		settings.VerifyContent = cs.GetBool(domain.KeyVerifyContent)
	}
	if _, ok := cs.Get(domain.KeyStampSidecars); ok {
		settings.StampSidecars = cs.GetBool(domain.KeyStampSidecars)
	}
	if _, ok := cs.Get(domain.KeyMaxRecordsPerSecond); ok {
		settings.MaxRecordsPerSecond = cs.GetFloat(domain.KeyMaxRecordsPerSecond)
	}
	if _, ok := cs.Get(domain.KeyIndexInterval); ok {
		settings.IndexInterval = cs.GetDuration(domain.KeyIndexInterval)
	}
	if _, ok := cs.Get(domain.KeySearchDefaultLimit); ok {
		settings.SearchDefaultLimit = cs.GetInt(domain.KeySearchDefaultLimit)
	}

	if env := strings.TrimSpace(s.getenv(EnvRepositoryRoot)); env != "" {
		settings.RepositoryRoot = env
	}
	root, err := ExpandHome(settings.RepositoryRoot)
	if err != nil {
		return nil, err
	}
	settings.RepositoryRoot = root

	if err := validateSettings(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Set validates and persists one configuration key.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKeys[key]
	if !ok {
		return domain.NewValidationError("key", key,
			fmt.Errorf("%w: unknown setting, expected one of %s", domain.ErrInvalidInput, strings.Join(SettingKeys(), ", ")))
	}

	parsed, err := parseSetting(key, kind, strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func parseSetting(key string, kind settingKind, value string) (any, error) {
	invalid := func(reason string) error {
		return domain.NewValidationError(key, value, fmt.Errorf("%w: %s", domain.ErrInvalidInput, reason))
	}

	switch kind {
	case kindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, invalid("not an integer")
		}
		if n < 1 {
			return nil, invalid("must be positive")
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, invalid("not a number")
		}
		if f < 0 {
			return nil, invalid("must not be negative")
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, invalid("not a boolean")
		}
		return b, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, invalid("not a duration")
		}
		if d <= 0 {
			return nil, invalid("must be positive")
		}
		// Stored as text so the file stays readable.
		return d.String(), nil
	default:
		if value == "" {
			return nil, invalid("must not be empty")
		}
		return value, nil
	}
}

func validateSettings(s *domain.Settings) error {
	switch {
	case s.RepositoryRoot == "":
		return domain.NewValidationError(domain.KeyRepositoryRoot, "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
	case s.IndexerWorkers < 1:
		return domain.NewValidationError(domain.KeyIndexerWorkers, strconv.Itoa(s.IndexerWorkers),
			fmt.Errorf("%w: must be positive", domain.ErrInvalidInput))
	case s.MaxRecordsPerSecond < 0:
		return domain.NewValidationError(domain.KeyMaxRecordsPerSecond, fmt.Sprint(s.MaxRecordsPerSecond),
			fmt.Errorf("%w: must not be negative", domain.ErrInvalidInput))
	case s.IndexInterval <= 0:
		return domain.NewValidationError(domain.KeyIndexInterval, s.IndexInterval.String(),
			fmt.Errorf("%w: must be positive", domain.ErrInvalidInput))
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
