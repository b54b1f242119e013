// Package metadata builds, validates and encodes sidecar records.
//
// A sidecar is checked twice: structurally against a JSON Schema
// reflected from domain.Record, then semantically (identifiers, digest
// format, relative paths, workflow/category consistency). Writers run
// the semantic checks before touching disk; the indexer runs both
// against every sidecar it reads, since sidecars may be hand-edited or
// come from foreign producers.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
)

// TimestampLayout is the UTC timestamp format embedded in document IDs.
const TimestampLayout = "2006-01-02T15:04:05Z"

// DocumentID returns "{source}={scope}/{created_at}/{digest}" where scope
// is the workflow for documents and the context for streams.
func DocumentID(source, scope string, createdAt time.Time, d digest.Digest) string {
	return source + "=" + scope + "/" + createdAt.UTC().Format(TimestampLayout) + "/" + d.String()
}

// ParsedID is a decomposed document ID.
type ParsedID struct {
	Source    string
	Scope     string
	CreatedAt time.Time
	Digest    digest.Digest
}

// ParseDocumentID splits a document ID into its parts.
func ParseDocumentID(id string) (ParsedID, error) {
	source, rest, ok := strings.Cut(id, "=")
	if !ok || source == "" {
		return ParsedID{}, fmt.Errorf("%w: document id %q: missing source", domain.ErrInvalidInput, id)
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" {
		return ParsedID{}, fmt.Errorf("%w: document id %q: expected scope/timestamp/digest", domain.ErrInvalidInput, id)
	}
	ts, err := time.Parse(TimestampLayout, parts[1])
	if err != nil {
		return ParsedID{}, fmt.Errorf("%w: document id %q: %v", domain.ErrInvalidInput, id, err)
	}
	d, err := digest.Parse(parts[2])
	if err != nil {
		return ParsedID{}, fmt.Errorf("document id %q: %w", id, err)
	}
	return ParsedID{Source: source, Scope: parts[0], CreatedAt: ts, Digest: d}, nil
}
