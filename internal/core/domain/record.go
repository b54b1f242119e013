package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category distinguishes classified documents from stream records.
type Category string

const (
	// CategoryClassified is a document belonging to a named workflow.
	CategoryClassified Category = "classified"

	// CategoryStream is a source+context partitioned, day-bucketed artifact.
	CategoryStream Category = "stream"
)

// IsValid returns true if the category is recognised.
func (c Category) IsValid() bool {
	return c == CategoryClassified || c == CategoryStream
}

// Record is the metadata sidecar stored beside every content file.
// It is immutable after the initial write except for IndexStatus.
type Record struct {
	// ID is the document identifier {source}={workflow-or-context}/{timestamp}/{digest}.
	ID string `json:"id" jsonschema:"minLength=1"`

	// Entity is the owner namespace of the repository partition.
	Entity string `json:"entity" jsonschema:"pattern=^[a-z0-9_-]+$"`

	// Source identifies the producing system (mail, slack, scan...).
	Source string `json:"source" jsonschema:"pattern=^[a-z0-9_-]+$"`

	// Workflow is set for classified documents and absent for streams.
	Workflow string `json:"workflow,omitempty" jsonschema:"pattern=^[a-z0-9_-]+$"`

	// Type and Subtype describe the document kind (receipt, invoice, message...).
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`

	// CreatedAt is the UTC creation timestamp of the content.
	CreatedAt time.Time `json:"created_at"`

	// Content describes the primary content file.
	Content Content `json:"content"`

	// Origin carries source-specific provenance.
	Origin Origin `json:"origin,omitempty"`

	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`

	// Relationships are typed links to other document IDs.
	Relationships []Relationship `json:"relationships,omitempty"`

	// Classification is the optional workflow suggestion that produced this record.
	Classification *Classification `json:"classification,omitempty"`

	// Ingest records the producer identity and time.
	Ingest Ingest `json:"ingest"`

	// IndexStatus is the only block the indexer may rewrite.
	IndexStatus *IndexStatus `json:"index_status,omitempty"`
}

// Content describes a content file relative to the entity root.
type Content struct {
	Path        string   `json:"path" jsonschema:"minLength=1"`
	Hash        string   `json:"hash" jsonschema:"pattern=^sha256:[a-f0-9]{64}$"`
	SizeBytes   int64    `json:"size_bytes" jsonschema:"minimum=1"`
	MediaType   string   `json:"mimetype" jsonschema:"minLength=1"`
	Attachments []string `json:"attachments,omitempty"`
}

// Ingest records which producer wrote the record and when.
type Ingest struct {
	Connector  string    `json:"connector" jsonschema:"minLength=1"`
	IngestedAt time.Time `json:"ingested_at"`
	Hostname   string    `json:"hostname,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
}

// Relationship is a typed link to another document.
type Relationship struct {
	Type     string `json:"type" jsonschema:"minLength=1"`
	TargetID string `json:"target_id" jsonschema:"minLength=1"`
}

// Classification is the workflow suggestion attached by the classifier
// that routed the content. It feeds the catalog's training log.
type Classification struct {
	SuggestedWorkflow string   `json:"suggested_workflow,omitempty"`
	Category          string   `json:"category,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	Accepted          *bool    `json:"accepted,omitempty"`
}

// IndexStatus tracks when the record was catalogued.
type IndexStatus struct {
	IndexedAt   *time.Time `json:"indexed_at,omitempty"`
	CatalogID   int64      `json:"catalog_id,omitempty"`
	ExternalRef string     `json:"external_ref,omitempty"`
}

// Category returns the record's category, derived from the workflow field.
func (r *Record) Category() Category {
	if r.Workflow != "" {
		return CategoryClassified
	}
	return CategoryStream
}

// recordAlias strips the custom codec from Record.
type recordAlias Record

// recordWire shadows Origin with its raw JSON form.
type recordWire struct {
	*recordAlias
	Origin json.RawMessage `json:"origin,omitempty"`
}

// MarshalJSON encodes the origin variant as a flat object.
func (r Record) MarshalJSON() ([]byte, error) {
	alias := recordAlias(r)
	wire := recordWire{recordAlias: &alias}
	if r.Origin != nil {
		raw, err := json.Marshal(r.Origin)
		if err != nil {
			return nil, fmt.Errorf("marshalling origin: %w", err)
		}
		wire.Origin = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the origin into the variant selected by Source.
func (r *Record) UnmarshalJSON(data []byte) error {
	var alias recordAlias
	wire := recordWire{recordAlias: &alias}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Record(alias)
	r.Origin = nil
	if len(wire.Origin) == 0 || string(wire.Origin) == "null" {
		return nil
	}
	origin, err := DecodeOrigin(r.Source, wire.Origin)
	if err != nil {
		return fmt.Errorf("decoding origin: %w", err)
	}
	r.Origin = origin
	return nil
}
