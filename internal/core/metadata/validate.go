package metadata

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/layout"
)

// Validate runs the semantic checks on a record.
func Validate(rec *domain.Record) error {
	if rec == nil {
		return domain.NewValidationError("record", "", domain.ErrInvalidInput)
	}
	if err := layout.ValidateIdentifier("entity", rec.Entity); err != nil {
		return err
	}
	if err := layout.ValidateIdentifier("source", rec.Source); err != nil {
		return err
	}
	if rec.Workflow != "" {
		if err := layout.ValidateIdentifier("workflow", rec.Workflow); err != nil {
			return err
		}
	}
	if rec.CreatedAt.IsZero() {
		return domain.NewValidationError("created_at", "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
	}

	if err := validateContent(rec); err != nil {
		return err
	}
	if err := validateID(rec); err != nil {
		return err
	}

	if rec.Ingest.Connector == "" {
		return domain.NewValidationError("ingest.connector", "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
	}
	if rec.Ingest.IngestedAt.IsZero() {
		return domain.NewValidationError("ingest.ingested_at", "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
	}

	if rec.Origin != nil {
		if want := domain.OriginKindForSource(rec.Source); rec.Origin.Kind() != want {
			return domain.NewValidationError("origin", string(rec.Origin.Kind()),
				fmt.Errorf("%w: source %q expects %s origin", domain.ErrInvalidInput, rec.Source, want))
		}
	}

	for i, rel := range rec.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if rel.Type == "" {
			return domain.NewValidationError(field+".type", "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
		}
		if rel.TargetID == "" {
			return domain.NewValidationError(field+".target_id", "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
		}
	}

	if c := rec.Classification; c != nil {
		if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 1) {
			return domain.NewValidationError("classification.confidence", fmt.Sprint(*c.Confidence),
				fmt.Errorf("%w: must be within [0, 1]", domain.ErrInvalidInput))
		}
		if c.SuggestedWorkflow != "" {
			if err := layout.ValidateIdentifier("classification.suggested_workflow", c.SuggestedWorkflow); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateContent(rec *domain.Record) error {
	c := rec.Content
	if _, err := digest.Parse(c.Hash); err != nil {
		return domain.NewValidationError("content.hash", c.Hash, err)
	}
	if c.SizeBytes <= 0 {
		return domain.NewValidationError("content.size_bytes", fmt.Sprint(c.SizeBytes), domain.ErrEmptyContent)
	}
	if c.MediaType == "" {
		return domain.NewValidationError("content.mimetype", "", fmt.Errorf("%w: required", domain.ErrInvalidInput))
	}
	if err := layout.CheckRelative("content.path", c.Path); err != nil {
		return err
	}
	for i, att := range c.Attachments {
		if err := layout.CheckRelative(fmt.Sprintf("content.attachments[%d]", i), att); err != nil {
			return err
		}
	}

	// The content tree must agree with the category.
	switch rec.Category() {
	case domain.CategoryClassified:
		prefix := layout.WorkflowsDir + "/" + rec.Workflow + "/"
		if !strings.HasPrefix(c.Path, prefix) {
			return domain.NewValidationError("content.path", c.Path,
				fmt.Errorf("%w: classified content must live under %s", domain.ErrInvalidInput, prefix))
		}
	case domain.CategoryStream:
		prefix := layout.StreamsDir + "/" + rec.Source + "/"
		if !strings.HasPrefix(c.Path, prefix) {
			return domain.NewValidationError("content.path", c.Path,
				fmt.Errorf("%w: stream content must live under %s", domain.ErrInvalidInput, prefix))
		}
	}
	return nil
}

func validateID(rec *domain.Record) error {
	id, err := ParseDocumentID(rec.ID)
	if err != nil {
		return domain.NewValidationError("id", rec.ID, err)
	}
	if id.Source != rec.Source {
		return domain.NewValidationError("id", rec.ID,
			fmt.Errorf("%w: source %q does not match record source %q", domain.ErrInvalidInput, id.Source, rec.Source))
	}
	if rec.Workflow != "" && id.Scope != rec.Workflow {
		return domain.NewValidationError("id", rec.ID,
			fmt.Errorf("%w: scope %q does not match workflow %q", domain.ErrInvalidInput, id.Scope, rec.Workflow))
	}
	if rec.Workflow == "" {
		if ctx := streamContext(rec.Source, rec.Content.Path); id.Scope != ctx {
			return domain.NewValidationError("id", rec.ID,
				fmt.Errorf("%w: scope %q does not match stream context %q", domain.ErrInvalidInput, id.Scope, ctx))
		}
	}
	if id.Digest.String() != rec.Content.Hash {
		return domain.NewValidationError("id", rec.ID,
			fmt.Errorf("%w: digest does not match content.hash", domain.ErrInvalidInput))
	}
	return nil
}

// streamContext returns the {context} segment of a
// streams/{source}/{context}/... content path.
func streamContext(source, contentPath string) string {
	rest := strings.TrimPrefix(contentPath, layout.StreamsDir+"/"+source+"/")
	ctx, _, _ := strings.Cut(rest, "/")
	return ctx
}

// ValidateAt checks that a record agrees with where its sidecar was
// found. metaRel is the sidecar path relative to the entity's metadata
// directory, slash separated.
func ValidateAt(rec *domain.Record, entity, metaRel string) error {
	if rec.Entity != entity {
		return domain.NewValidationError("entity", rec.Entity,
			fmt.Errorf("%w: sidecar lives under entity %q", domain.ErrInvalidInput, entity))
	}
	switch {
	case strings.HasPrefix(metaRel, layout.WorkflowsDir+"/"):
		if rec.Workflow == "" {
			return domain.NewValidationError("workflow", "",
				fmt.Errorf("%w: required for sidecars under metadata/%s", domain.ErrInvalidInput, layout.WorkflowsDir))
		}
	case strings.HasPrefix(metaRel, layout.StreamsDir+"/"):
		if rec.Workflow != "" {
			return domain.NewValidationError("workflow", rec.Workflow,
				fmt.Errorf("%w: not allowed for sidecars under metadata/%s", domain.ErrInvalidInput, layout.StreamsDir))
		}
	default:
		return domain.NewValidationError("path", metaRel,
			fmt.Errorf("%w: sidecar outside metadata/%s and metadata/%s", domain.ErrInvalidInput,
				layout.WorkflowsDir, layout.StreamsDir))
	}
	return nil
}
