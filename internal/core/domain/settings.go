package domain

import "time"

// Configuration keys understood by the TOML config store.
const (
	KeyRepositoryRoot      = "repository.root"
	KeyMaxContentBytes     = "writer.max_content_bytes"
	KeyConnectorVersion    = "writer.connector_version"
	KeyWriterManifest      = "writer.manifest"
	KeyIndexerWorkers      = "indexer.workers"
	KeyVerifyContent       = "indexer.verify_content"
	KeyStampSidecars       = "indexer.stamp_sidecars"
	KeyMaxRecordsPerSecond = "indexer.max_records_per_second"
	KeyIndexInterval       = "indexer.interval"
	KeySearchDefaultLimit  = "search.default_limit"
)

// Defaults.
const (
	DefaultRepositoryRoot   = "~/Archive"
	DefaultConnectorVersion = "0.1.0"
)

// Settings is the resolved application configuration.
type Settings struct {
	// RepositoryRoot is the directory holding entities/ and indexes/.
	RepositoryRoot string

	// MaxContentBytes rejects larger content at write time.
	MaxContentBytes int64

	// ConnectorVersion is appended to the source in ingest.connector.
	ConnectorVersion string

	// Manifest appends every newly written record to manifest.jsonl in
	// its content directory.
	Manifest bool

	// IndexerWorkers bounds parallel sidecar loading.
	IndexerWorkers int

	// VerifyContent makes the indexer hash content files instead of
	// trusting the sidecar digest.
	VerifyContent bool

	// StampSidecars makes the indexer write index_status back to sidecars.
	StampSidecars bool

	// MaxRecordsPerSecond throttles upserts; 0 disables throttling.
	MaxRecordsPerSecond float64

	// IndexInterval is the default period of scheduled index runs.
	IndexInterval time.Duration

	// SearchDefaultLimit is used when a search has no limit.
	SearchDefaultLimit int
}

// DefaultSettings returns sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		RepositoryRoot:     DefaultRepositoryRoot,
		MaxContentBytes:    1 << 30,
		ConnectorVersion:   DefaultConnectorVersion,
		IndexerWorkers:     4,
		VerifyContent:      true,
		IndexInterval:      time.Hour,
		SearchDefaultLimit: 20,
	}
}
