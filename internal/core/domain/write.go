package domain

import "time"

// AttachmentInput is one side-file written alongside a document.
type AttachmentInput struct {
	Content []byte

	// MediaType and Filename pick the attachment's extension.
	MediaType string
	Filename  string
}

// DocumentRequest asks the writer to persist a classified document.
type DocumentRequest struct {
	Entity   string
	Source   string
	Workflow string

	// Name is the untrusted base name; sanitized into the filename.
	// Empty names fall back to the creation time in base36.
	Name string

	// OriginalFilename is consulted for the extension before MediaType.
	OriginalFilename string

	Content   []byte
	MediaType string

	// CreatedAt is normalised to UTC. Zero means now.
	CreatedAt time.Time

	Type           string
	Subtype        string
	Origin         Origin
	Tags           []string
	Relationships  []Relationship
	Classification *Classification
	Attachments    []AttachmentInput
}

// StreamRequest asks the writer to persist one day of a stream.
type StreamRequest struct {
	Entity  string
	Source  string
	Context string

	OriginalFilename string
	Content          []byte
	MediaType        string
	CreatedAt        time.Time

	Type    string
	Subtype string
	Origin  Origin
	Tags    []string
}

// WriteResult reports where a write landed.
type WriteResult struct {
	DocumentID      string
	ContentPath     string
	MetadataPath    string
	AttachmentPaths []string

	// Created is false when the write was an idempotent no-op.
	Created bool

	// Repaired is true when a missing sidecar was rewritten for existing content.
	Repaired bool
}

// IndexOptions scopes an indexer run.
type IndexOptions struct {
	// Entity restricts discovery and deletion to one entity.
	Entity string
}
