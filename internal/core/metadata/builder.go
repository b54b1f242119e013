package metadata

import (
	"time"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Builder assembles records on behalf of one producer.
type Builder struct {
	// Connector identifies the producer, e.g. "mail@0.1.0".
	Connector string
	Hostname  string
	RunID     string

	// Clock stamps ingest time. Defaults to time.Now.
	Clock func() time.Time
}

// BuildInput is everything a record is assembled from.
type BuildInput struct {
	Entity   string
	Source   string
	Workflow string
	// Context is the stream context; used for the ID when Workflow is empty.
	Context string

	Type    string
	Subtype string

	CreatedAt   time.Time
	ContentPath string
	Digest      digest.Digest
	Size        int64
	MediaType   string
	Attachments []string

	Origin         domain.Origin
	Tags           []string
	Relationships  []domain.Relationship
	Classification *domain.Classification
}

// Build assembles and validates a record.
func (b *Builder) Build(in BuildInput) (*domain.Record, error) {
	now := time.Now
	if b.Clock != nil {
		now = b.Clock
	}

	scope := in.Workflow
	if scope == "" {
		scope = in.Context
	}
	createdAt := in.CreatedAt.UTC().Truncate(time.Second)

	rec := &domain.Record{
		ID:        DocumentID(in.Source, scope, createdAt, in.Digest),
		Entity:    in.Entity,
		Source:    in.Source,
		Workflow:  in.Workflow,
		Type:      in.Type,
		Subtype:   in.Subtype,
		CreatedAt: createdAt,
		Content: domain.Content{
			Path:        in.ContentPath,
			Hash:        in.Digest.String(),
			SizeBytes:   in.Size,
			MediaType:   in.MediaType,
			Attachments: in.Attachments,
		},
		Origin:         in.Origin,
		Tags:           in.Tags,
		Relationships:  in.Relationships,
		Classification: in.Classification,
		Ingest: domain.Ingest{
			Connector:  b.Connector,
			IngestedAt: now().UTC().Truncate(time.Second),
			Hostname:   b.Hostname,
			RunID:      b.RunID,
		},
	}

	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
