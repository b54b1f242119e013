package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/layout"
	"github.com/custodia-labs/archivist/internal/core/metadata"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/logger"
)

// Ensure Writer implements the interface.
var _ driving.Writer = (*Writer)(nil)

// Write kinds and outcomes reported to WriteMetrics.
const (
	writeKindDocument = "document"
	writeKindStream   = "stream"

	writeCreated   = "created"
	writeUnchanged = "unchanged"
	writeRepaired  = "repaired"
	writeRejected  = "rejected"
	writeFailed    = "failed"
)

// defaultMediaType is recorded when the caller gives none.
const defaultMediaType = "application/octet-stream"

// maxPlaceAttempts bounds how often a lost placement race re-runs the
// collision policy.
const maxPlaceAttempts = 3

// Writer persists content and its sidecar into the repository.
//
// Writers never coordinate with each other: every placement is
// no-clobber, so two processes writing different content under the same
// name end up with two files, one of them digest-suffixed.
type Writer struct {
	resolver *layout.Resolver
	content  driven.ContentStore
	metrics  driven.WriteMetrics

	maxContentBytes  int64
	manifest         bool
	connectorVersion string
	hostname         string
	runID            string
	now              func() time.Time
}

// NewWriter creates a writer rooted at the resolver's repository.
func NewWriter(resolver *layout.Resolver, content driven.ContentStore, settings domain.Settings) *Writer {
	hostname, err := os.Hostname()
	if err != nil {
		logger.Debug("resolving hostname: %v", err)
	}
	version := settings.ConnectorVersion
	if version == "" {
		version = domain.DefaultConnectorVersion
	}
	return &Writer{
		resolver:         resolver,
		content:          content,
		maxContentBytes:  settings.MaxContentBytes,
		manifest:         settings.Manifest,
		connectorVersion: version,
		hostname:         hostname,
		runID:            uuid.NewString(),
		now:              time.Now,
	}
}

// SetMetrics sets the metrics sink.
func (w *Writer) SetMetrics(m driven.WriteMetrics) {
	w.metrics = m
}

// SetClock replaces the clock used for defaulted creation and ingest times.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// writePlan is a fully validated write, computed before touching disk.
type writePlan struct {
	kind        string
	spec        layout.PathSpec
	name        string
	content     []byte
	digest      digest.Digest
	attachments []domain.AttachmentInput
	input       metadata.BuildInput
}

// WriteDocument stores a classified document and its attachments.
func (w *Writer) WriteDocument(ctx context.Context, req domain.DocumentRequest) (*domain.WriteResult, error) {
	logger.Section("Write Document")

	plan, err := w.planDocument(req)
	if err != nil {
		w.observe(writeKindDocument, writeRejected)
		return nil, err
	}
	return w.execute(ctx, plan)
}

// WriteStream stores one stream artifact.
func (w *Writer) WriteStream(ctx context.Context, req domain.StreamRequest) (*domain.WriteResult, error) {
	logger.Section("Write Stream")

	plan, err := w.planStream(req)
	if err != nil {
		w.observe(writeKindStream, writeRejected)
		return nil, err
	}
	return w.execute(ctx, plan)
}

func (w *Writer) planDocument(req domain.DocumentRequest) (*writePlan, error) {
	for _, id := range []struct{ field, value string }{
		{"entity", req.Entity}, {"source", req.Source}, {"workflow", req.Workflow},
	} {
		if err := layout.ValidateIdentifier(id.field, id.value); err != nil {
			return nil, err
		}
	}
	if err := w.checkContent("content", req.Content); err != nil {
		return nil, err
	}
	for i, att := range req.Attachments {
		if err := w.checkContent(fmt.Sprintf("attachments[%d]", i), att.Content); err != nil {
			return nil, err
		}
	}

	createdAt := w.createdAt(req.CreatedAt)
	base := req.Name
	if strings.TrimSpace(base) == "" {
		base = stem(req.OriginalFilename)
	}
	if strings.TrimSpace(base) == "" {
		base = layout.DefaultBaseName(createdAt)
	}
	ext := layout.ExtensionFor(req.MediaType, req.OriginalFilename)
	if e := path.Ext(base); e != "" && strings.EqualFold(e, ext) {
		base = strings.TrimSuffix(base, e)
	}

	plan := &writePlan{
		kind: writeKindDocument,
		spec: layout.PathSpec{
			Entity:   req.Entity,
			Category: domain.CategoryClassified,
			Source:   req.Source,
			Name:     req.Workflow,
			Year:     createdAt.Year(),
		},
		name:        layout.Filename(createdAt, req.Source, base, ext, ""),
		content:     req.Content,
		digest:      digest.Of(req.Content),
		attachments: req.Attachments,
		input: metadata.BuildInput{
			Entity:         req.Entity,
			Source:         req.Source,
			Workflow:       req.Workflow,
			Type:           req.Type,
			Subtype:        req.Subtype,
			CreatedAt:      createdAt,
			MediaType:      mediaTypeOrDefault(req.MediaType),
			Origin:         req.Origin,
			Tags:           req.Tags,
			Relationships:  req.Relationships,
			Classification: req.Classification,
		},
	}
	return plan, w.dryRun(plan)
}

func (w *Writer) planStream(req domain.StreamRequest) (*writePlan, error) {
	for _, id := range []struct{ field, value string }{
		{"entity", req.Entity}, {"source", req.Source}, {"context", req.Context},
	} {
		if err := layout.ValidateIdentifier(id.field, id.value); err != nil {
			return nil, err
		}
	}
	if err := w.checkContent("content", req.Content); err != nil {
		return nil, err
	}

	createdAt := w.createdAt(req.CreatedAt)
	ext := layout.ExtensionFor(req.MediaType, req.OriginalFilename)

	plan := &writePlan{
		kind: writeKindStream,
		spec: layout.PathSpec{
			Entity:   req.Entity,
			Category: domain.CategoryStream,
			Source:   req.Source,
			Name:     req.Context,
			Year:     createdAt.Year(),
		},
		name:    layout.StreamFilename(createdAt, ext, ""),
		content: req.Content,
		digest:  digest.Of(req.Content),
		input: metadata.BuildInput{
			Entity:    req.Entity,
			Source:    req.Source,
			Context:   req.Context,
			Type:      req.Type,
			Subtype:   req.Subtype,
			CreatedAt: createdAt,
			MediaType: mediaTypeOrDefault(req.MediaType),
			Origin:    req.Origin,
			Tags:      req.Tags,
		},
	}
	return plan, w.dryRun(plan)
}

// dryRun builds the record the write would produce, so that every
// record-level rule is enforced before any file exists.
func (w *Writer) dryRun(plan *writePlan) error {
	dir, err := w.resolver.DirFor(plan.spec)
	if err != nil {
		return err
	}
	rel, err := w.resolver.RelToEntity(plan.spec.Entity, filepath.Join(dir, plan.name))
	if err != nil {
		return err
	}

	in := plan.input
	in.ContentPath = rel
	in.Digest = plan.digest
	in.Size = int64(len(plan.content))
	for i, att := range plan.attachments {
		in.Attachments = append(in.Attachments,
			path.Join(path.Dir(rel), layout.AttachmentName(plan.name, i+1, layout.ExtensionFor(att.MediaType, att.Filename))))
	}
	_, err = w.builder(in.Source).Build(in)
	return err
}

// execute performs a validated write.
func (w *Writer) execute(ctx context.Context, plan *writePlan) (*domain.WriteResult, error) {
	res, err := w.write(ctx, plan)
	switch {
	case err != nil:
		w.observe(plan.kind, writeFailed)
		logger.Warn("write %s failed: %v", plan.kind, err)
	case res.Repaired:
		w.observe(plan.kind, writeRepaired)
	case res.Created:
		w.observe(plan.kind, writeCreated)
	default:
		w.observe(plan.kind, writeUnchanged)
	}
	return res, err
}

func (w *Writer) write(ctx context.Context, plan *writePlan) (*domain.WriteResult, error) {
	entity := plan.spec.Entity
	dir, err := w.resolver.DirFor(plan.spec)
	if err != nil {
		return nil, err
	}

	target, existed, err := w.resolveTarget(dir, plan.name, plan.digest)
	if err != nil {
		return nil, err
	}

	var placed []string
	for attempt := 1; !existed; attempt++ {
		err := w.content.Place(ctx, target, plan.content)
		if err == nil {
			placed = append(placed, target)
			logger.Debug("placed %s", target)
			break
		}
		if !errors.Is(err, domain.ErrAlreadyExists) || attempt >= maxPlaceAttempts {
			return nil, &domain.WriteError{Op: "write content", Path: target, CleanedUp: true, Err: err}
		}
		logger.Debug("lost placement race for %s, re-resolving", target)
		target, existed, err = w.resolveTarget(dir, plan.name, plan.digest)
		if err != nil {
			return nil, err
		}
	}

	attPaths, newAtts, err := w.placeAttachments(ctx, dir, filepath.Base(target), plan.attachments)
	placed = append(placed, newAtts...)
	if err != nil {
		var failed string
		var werr *domain.WriteError
		if errors.As(err, &werr) {
			failed = werr.Path
			err = werr.Err
		}
		return nil, &domain.WriteError{Op: "write attachment", Path: failed, CleanedUp: w.rollback(placed), Err: err}
	}

	contentRel, err := w.resolver.RelToEntity(entity, target)
	if err != nil {
		w.rollback(placed)
		return nil, err
	}
	sidecar, err := w.resolver.SidecarPath(entity, contentRel)
	if err != nil {
		w.rollback(placed)
		return nil, err
	}

	result := &domain.WriteResult{
		ContentPath:     target,
		MetadataPath:    sidecar,
		AttachmentPaths: attPaths,
		Created:         !existed,
	}

	if existed {
		if rec := w.existingRecord(sidecar, plan.digest); rec != nil {
			logger.Info("content already stored at %s", target)
			result.DocumentID = rec.ID
			return result, nil
		}
		logger.Warn("content at %s has no usable sidecar, repairing", target)
		result.Repaired = true
	}

	in := plan.input
	in.ContentPath = contentRel
	in.Digest = plan.digest
	in.Size = int64(len(plan.content))
	for _, p := range attPaths {
		rel, err := w.resolver.RelToEntity(entity, p)
		if err != nil {
			return nil, &domain.WriteError{Op: "build metadata", Path: p, CleanedUp: w.rollback(placed), Err: err}
		}
		in.Attachments = append(in.Attachments, rel)
	}

	rec, err := w.builder(in.Source).Build(in)
	if err != nil {
		return nil, &domain.WriteError{Op: "build metadata", Path: sidecar, CleanedUp: w.rollback(placed), Err: err}
	}
	data, err := metadata.Encode(rec)
	if err != nil {
		return nil, &domain.WriteError{Op: "encode metadata", Path: sidecar, CleanedUp: w.rollback(placed), Err: err}
	}
	if err := w.content.Replace(ctx, sidecar, data); err != nil {
		return nil, &domain.WriteError{Op: "write metadata", Path: sidecar, CleanedUp: w.rollback(placed), Err: err}
	}

	logger.Info("wrote %s", rec.ID)
	result.DocumentID = rec.ID
	if w.manifest {
		w.appendManifest(ctx, entity, dir, sidecar, rec.ID)
	}
	return result, nil
}

// manifestEntry is one line of manifest.jsonl. MetadataPath is relative
// to the entity root.
type manifestEntry struct {
	DocumentID   string    `json:"document_id"`
	MetadataPath string    `json:"metadata_path"`
	Timestamp    time.Time `json:"timestamp"`
}

// appendManifest records a newly written record in its directory's
// manifest. The record is already durable, so a failure is only logged.
func (w *Writer) appendManifest(ctx context.Context, entity, dir, sidecar, documentID string) {
	metaRel, err := w.resolver.RelToEntity(entity, sidecar)
	var line []byte
	if err == nil {
		line, err = json.Marshal(manifestEntry{
			DocumentID:   documentID,
			MetadataPath: metaRel,
			Timestamp:    w.now().UTC(),
		})
	}
	if err == nil {
		err = w.content.Append(ctx, filepath.Join(dir, layout.ManifestFile), append(line, '\n'))
	}
	if err != nil {
		logger.Warn("appending to manifest in %s: %v", dir, err)
	}
}

// resolveTarget applies the collision policy to name in dir. It returns
// the path to use and whether that path already holds the content.
func (w *Writer) resolveTarget(dir, name string, d digest.Digest) (string, bool, error) {
	candidate := filepath.Join(dir, name)
	same, exists, err := w.sameContent(candidate, d)
	if err != nil {
		return "", false, err
	}
	if !exists || same {
		return candidate, exists, nil
	}

	suffixed := filepath.Join(dir, layout.WithDigestSuffix(name, d))
	logger.Debug("%s holds different content, trying %s", candidate, filepath.Base(suffixed))
	same, exists, err = w.sameContent(suffixed, d)
	if err != nil {
		return "", false, err
	}
	if exists && !same {
		return "", false, &domain.WriteError{Op: "resolve filename", Path: suffixed, CleanedUp: true, Err: domain.ErrDigestCollision}
	}
	return suffixed, exists, nil
}

// sameContent reports whether p exists and, if so, whether it holds d.
func (w *Writer) sameContent(p string, d digest.Digest) (same, exists bool, err error) {
	if _, err := w.content.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, false, nil
		}
		return false, false, &domain.WriteError{Op: "stat", Path: p, CleanedUp: true, Err: err}
	}
	h, _, err := w.content.Hash(p)
	if err != nil {
		return false, true, &domain.WriteError{Op: "hash existing file", Path: p, CleanedUp: true, Err: err}
	}
	return h == d.String(), true, nil
}

// placeAttachments writes the attachment set next to the content file.
// It returns every attachment path and the subset placed by this call.
func (w *Writer) placeAttachments(
	ctx context.Context, dir, contentName string, atts []domain.AttachmentInput,
) (all, placed []string, err error) {
	for i, att := range atts {
		name := layout.AttachmentName(contentName, i+1, layout.ExtensionFor(att.MediaType, att.Filename))
		p := filepath.Join(dir, name)

		same, exists, err := w.sameContent(p, digest.Of(att.Content))
		if err != nil {
			return all, placed, err
		}
		if exists {
			if !same {
				return all, placed, &domain.WriteError{Op: "write attachment", Path: p, Err: domain.ErrAlreadyExists}
			}
			all = append(all, p)
			continue
		}

		if err := w.content.Place(ctx, p, att.Content); err != nil {
			return all, placed, &domain.WriteError{Op: "write attachment", Path: p, Err: err}
		}
		all = append(all, p)
		placed = append(placed, p)
	}
	return all, placed, nil
}

// rollback removes files placed by the failed call, newest first.
// It reports whether every removal succeeded.
func (w *Writer) rollback(paths []string) bool {
	ok := true
	for i := len(paths) - 1; i >= 0; i-- {
		if err := w.content.Remove(paths[i]); err != nil {
			logger.Error("rolling back %s: %v", paths[i], err)
			ok = false
			continue
		}
		logger.Debug("rolled back %s", paths[i])
	}
	return ok
}

// existingRecord reads the sidecar of content already in place. It
// returns nil when the sidecar is missing or does not describe d.
func (w *Writer) existingRecord(sidecar string, d digest.Digest) *domain.Record {
	data, err := w.content.ReadFile(sidecar)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("reading sidecar %s: %v", sidecar, err)
		}
		return nil
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("decoding sidecar %s: %v", sidecar, err)
		return nil
	}
	if rec.Content.Hash != d.String() || rec.ID == "" {
		logger.Warn("sidecar %s does not describe %s", sidecar, d)
		return nil
	}
	return &rec
}

func (w *Writer) builder(source string) *metadata.Builder {
	return &metadata.Builder{
		Connector: source + "@" + w.connectorVersion,
		Hostname:  w.hostname,
		RunID:     w.runID,
		Clock:     w.now,
	}
}

func (w *Writer) checkContent(field string, data []byte) error {
	if len(data) == 0 {
		return domain.NewValidationError(field, "", domain.ErrEmptyContent)
	}
	if w.maxContentBytes > 0 && int64(len(data)) > w.maxContentBytes {
		return domain.NewValidationError(field, fmt.Sprintf("%d bytes", len(data)),
			fmt.Errorf("%w: limit is %d bytes", domain.ErrContentTooLarge, w.maxContentBytes))
	}
	return nil
}

func (w *Writer) createdAt(t time.Time) time.Time {
	if t.IsZero() {
		t = w.now()
	}
	return t.UTC().Truncate(time.Second)
}

func (w *Writer) observe(kind, outcome string) {
	if w.metrics != nil {
		w.metrics.ObserveWrite(kind, outcome)
	}
}

func mediaTypeOrDefault(mt string) string {
	if strings.TrimSpace(mt) == "" {
		return defaultMediaType
	}
	return mt
}

// stem returns a filename without directory or extension.
func stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
