package driving

import (
	"context"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Writer persists content and sidecars into the repository.
type Writer interface {
	// WriteDocument stores a classified document and its attachments.
	// Writing identical content and provenance twice is a no-op.
	WriteDocument(ctx context.Context, req domain.DocumentRequest) (*domain.WriteResult, error)

	// WriteStream stores one stream artifact.
	WriteStream(ctx context.Context, req domain.StreamRequest) (*domain.WriteResult, error)
}
