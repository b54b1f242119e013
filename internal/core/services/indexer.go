package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/layout"
	"github.com/custodia-labs/archivist/internal/core/metadata"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/core/ports/driving"
	"github.com/custodia-labs/archivist/internal/logger"
)

// Ensure Indexer implements the interface.
var _ driving.Indexer = (*Indexer)(nil)

// maxTextBytes bounds how much of a text file is read for full-text
// search and link resolution.
const maxTextBytes = 1 << 20

// linkPattern matches references to classified documents inside stream
// transcripts, relative to the entity root.
var linkPattern = regexp.MustCompile(`workflows/[a-z0-9_-]+/[0-9]{4}/[A-Za-z0-9._-]+`)

// textMediaTypes are indexed by content in addition to metadata.
var textMediaTypes = map[string]bool{
	"application/json":     true,
	"application/xml":      true,
	"message/rfc822":       true,
	"application/x-ndjson": true,
}

// Indexer projects the repository's sidecars into the catalog.
//
// A run walks every sidecar, loads and validates them in parallel, drops
// rows whose sidecar is gone, then applies the records one transaction
// per record. Runs are serialised by the run lock; per-record failures
// are counted, never fatal.
type Indexer struct {
	resolver  *layout.Resolver
	content   driven.ContentStore
	catalog   driven.Catalog
	runs      driven.ScanRunStore
	lock      driven.RunLock
	validator *metadata.Validator
	metrics   driven.IndexMetrics
	limiter   *rate.Limiter

	workers int
	verify  bool
	stamp   bool
	now     func() time.Time

	mu    sync.RWMutex
	state domain.ScanState
}

// NewIndexer creates an indexer. runs and lock may be nil.
func NewIndexer(
	resolver *layout.Resolver,
	content driven.ContentStore,
	catalog driven.Catalog,
	runs driven.ScanRunStore,
	lock driven.RunLock,
	settings domain.Settings,
) (*Indexer, error) {
	validator, err := metadata.NewValidator()
	if err != nil {
		return nil, err
	}
	workers := settings.IndexerWorkers
	if workers < 1 {
		workers = 1
	}
	idx := &Indexer{
		resolver:  resolver,
		content:   content,
		catalog:   catalog,
		runs:      runs,
		lock:      lock,
		validator: validator,
		workers:   workers,
		verify:    settings.VerifyContent,
		stamp:     settings.StampSidecars,
		now:       time.Now,
		state:     domain.ScanIdle,
	}
	if settings.MaxRecordsPerSecond > 0 {
		idx.limiter = rate.NewLimiter(rate.Limit(settings.MaxRecordsPerSecond), 1)
	}
	return idx, nil
}

// SetMetrics sets the metrics sink.
func (x *Indexer) SetMetrics(m driven.IndexMetrics) {
	x.metrics = m
}

// SetClock replaces the clock used for indexed_at and run timestamps.
func (x *Indexer) SetClock(now func() time.Time) {
	x.now = now
}

// State returns the current lifecycle state.
func (x *Indexer) State() domain.ScanState {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state
}

func (x *Indexer) setState(s domain.ScanState) {
	x.mu.Lock()
	x.state = s
	x.mu.Unlock()
}

// sidecarRef locates one discovered sidecar.
type sidecarRef struct {
	entity string
	path   string
	// metaRel is relative to the entity root, e.g. "metadata/workflows/...".
	metaRel string
}

func (r sidecarRef) key() string {
	return r.entity + "/" + r.metaRel
}

// loadedRecord is a sidecar after the parallel load phase.
type loadedRecord struct {
	ref  sidecarRef
	rec  *domain.Record
	hash string
	size int64
	// modTime is the content file's modification time.
	modTime time.Time
	// text is the content itself for text media, used for search and links.
	text string
	// textPending means text is read only if a full-text row is written.
	textPending bool
	missing     bool
	err         error

	// duplicateOf is the catalogued path already holding the digest.
	duplicateOf string
}

// rowID is the catalog row the record projects to.
func (l *loadedRecord) rowID() int64 {
	kind := domain.EntryStream
	if l.rec.Category() == domain.CategoryClassified {
		kind = domain.EntryDocument
	}
	return domain.RowID(kind, l.ref.entity, l.rec.Content.Path)
}

func (l *loadedRecord) recordID() string {
	if l.rec == nil {
		return ""
	}
	return l.rec.ID
}

// Index scans the repository and reconciles the catalog with it.
func (x *Indexer) Index(ctx context.Context, opts domain.IndexOptions) (*domain.ScanReport, error) {
	if opts.Entity != "" {
		if err := layout.ValidateIdentifier("entity", opts.Entity); err != nil {
			return nil, err
		}
	}
	if x.lock != nil {
		if err := x.lock.TryLock(); err != nil {
			return nil, err
		}
		defer func() {
			if err := x.lock.Unlock(); err != nil {
				logger.Warn("releasing index lock: %v", err)
			}
		}()
	}

	logger.Section("Index Run")
	x.setState(domain.ScanScanning)
	defer x.setState(domain.ScanIdle)

	report := &domain.ScanReport{
		RunID:     uuid.NewString(),
		Entity:    opts.Entity,
		StartedAt: x.now().UTC().Truncate(time.Second),
	}

	err := x.run(ctx, opts, report)

	report.EndedAt = x.now().UTC().Truncate(time.Second)
	if x.metrics != nil {
		x.metrics.ObserveScan(report.Duration())
	}
	if x.runs != nil {
		if saveErr := x.runs.Save(context.WithoutCancel(ctx), report); saveErr != nil {
			logger.Warn("saving scan run %s: %v", report.RunID, saveErr)
		}
	}
	logger.Info("index run %s: %s", report.RunID, report.Summary())

	if err != nil {
		return report, err
	}
	return report, nil
}

func (x *Indexer) run(ctx context.Context, opts domain.IndexOptions, report *domain.ScanReport) error {
	refs, err := x.discover(ctx, opts.Entity)
	if err != nil {
		return fmt.Errorf("discovering sidecars: %w", err)
	}
	logger.Debug("discovered %d sidecars", len(refs))

	entries, err := x.catalog.Entries(ctx, opts.Entity)
	if err != nil {
		return fmt.Errorf("listing catalog rows: %w", err)
	}
	prior := make(map[int64]domain.CatalogEntry, len(entries))
	for _, e := range entries {
		prior[e.ID] = e
	}

	items, err := x.loadAll(ctx, refs, prior)
	if err != nil {
		return err
	}

	// Vanished rows go first so a surviving copy can take over their digest.
	if err := x.deleteVanished(ctx, entries, refs, items, report); err != nil {
		return err
	}

	// A record whose digest is held by another row is retried once the
	// rest are applied, in case that row moved on to other content.
	var deferred []*loadedRecord
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.applyAndStamp(ctx, item, report, false)
		if item.duplicateOf != "" {
			deferred = append(deferred, item)
		}
	}
	for _, item := range deferred {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.applyAndStamp(ctx, item, report, true)
	}

	if err := x.resolveLinks(ctx, items, report); err != nil {
		return err
	}
	return x.sweepFullText(ctx)
}

func (x *Indexer) applyAndStamp(ctx context.Context, item *loadedRecord, report *domain.ScanReport, final bool) {
	outcome, rowID := x.apply(ctx, item, report, final)
	if x.stamp && rowID != 0 && (outcome == domain.OutcomeInserted || outcome == domain.OutcomeUpdated) {
		x.stampSidecar(ctx, item, rowID)
	}
}

// discover lists sidecars under entities/*/metadata in lexical order.
func (x *Indexer) discover(ctx context.Context, only string) ([]sidecarRef, error) {
	var entities []string
	if only != "" {
		entities = []string{only}
	} else {
		dirs, err := x.content.ReadDir(x.resolver.EntitiesRoot())
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				continue
			}
			if err := layout.ValidateIdentifier("entity", d.Name()); err != nil {
				logger.Warn("ignoring directory %s: %v", d.Name(), err)
				continue
			}
			entities = append(entities, d.Name())
		}
	}

	var refs []sidecarRef
	for _, entity := range entities {
		entityRoot, err := x.resolver.EntityRoot(entity)
		if err != nil {
			return nil, err
		}
		metaRoot := filepath.Join(entityRoot, layout.MetadataDir)
		if _, err := x.content.Stat(metaRoot); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		err = x.content.Walk(metaRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if p != metaRoot && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), layout.SidecarExt) {
				return nil
			}
			rel, err := filepath.Rel(entityRoot, p)
			if err != nil {
				return err
			}
			refs = append(refs, sidecarRef{entity: entity, path: p, metaRel: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// loadAll reads, validates and hashes sidecars in parallel. Per-record
// problems are stored on the item; only cancellation fails the phase.
// Content whose size and modification time match its prior row keeps
// the prior digest instead of being hashed again.
func (x *Indexer) loadAll(
	ctx context.Context,
	refs []sidecarRef,
	prior map[int64]domain.CatalogEntry,
) ([]*loadedRecord, error) {
	items := make([]*loadedRecord, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = x.load(ref, prior)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (x *Indexer) load(ref sidecarRef, prior map[int64]domain.CatalogEntry) *loadedRecord {
	item := &loadedRecord{ref: ref}

	data, err := x.content.ReadFile(ref.path)
	if err != nil {
		item.err = fmt.Errorf("reading sidecar: %w", err)
		return item
	}
	rec, err := x.validator.Decode(data)
	if err != nil {
		item.err = err
		return item
	}
	item.rec = rec

	underMeta := strings.TrimPrefix(ref.metaRel, layout.MetadataDir+"/")
	if err := metadata.ValidateAt(rec, ref.entity, underMeta); err != nil {
		item.err = err
		return item
	}
	if want := rec.Content.Path + layout.SidecarExt; underMeta != want {
		item.err = domain.NewValidationError("content.path", rec.Content.Path,
			fmt.Errorf("%w: sidecar should be metadata/%s", domain.ErrInvalidInput, want))
		return item
	}

	contentPath, err := x.resolver.ContentPath(ref.entity, rec.Content.Path)
	if err != nil {
		item.err = err
		return item
	}
	info, err := x.content.Stat(contentPath)
	if errors.Is(err, fs.ErrNotExist) {
		item.missing = true
		return item
	}
	if err != nil {
		item.err = fmt.Errorf("checking content: %w", err)
		return item
	}

	item.hash, item.size = rec.Content.Hash, rec.Content.SizeBytes
	item.modTime = info.ModTime().UTC()

	prev, ok := prior[item.rowID()]
	unchanged := ok && !prev.ModTime.IsZero() && prev.ModTime.Equal(item.modTime) && prev.Size == info.Size()
	if unchanged && x.verify {
		item.hash, item.size = prev.Hash, prev.Size
	}
	wantText := isText(rec.Content.MediaType, rec.Content.Path) && info.Size() <= maxTextBytes

	switch {
	case unchanged && wantText && rec.Category() == domain.CategoryClassified:
		item.textPending = true
	case wantText:
		body, err := x.content.ReadFile(contentPath)
		if err != nil {
			item.err = fmt.Errorf("reading content: %w", err)
			return item
		}
		item.text = string(body)
		if x.verify && !unchanged {
			item.hash, item.size = digest.Of(body).String(), int64(len(body))
		}
	case x.verify && !unchanged:
		h, n, err := x.content.Hash(contentPath)
		if err != nil {
			item.err = fmt.Errorf("hashing content: %w", err)
			return item
		}
		item.hash, item.size = h, n
	}

	if item.hash != rec.Content.Hash {
		logger.Warn("content of %s was replaced out-of-band: sidecar %s, disk %s",
			rec.Content.Path, rec.Content.Hash, item.hash)
	}
	return item
}

// readPendingText loads text whose read was put off by load.
func (x *Indexer) readPendingText(item *loadedRecord) error {
	if !item.textPending {
		return nil
	}
	contentPath, err := x.resolver.ContentPath(item.ref.entity, item.rec.Content.Path)
	if err != nil {
		return err
	}
	body, err := x.content.ReadFile(contentPath)
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	item.text, item.textPending = string(body), false
	return nil
}

// apply reconciles one loaded record with the catalog. Unless final, a
// record whose digest is held elsewhere is left uncounted for a retry.
func (x *Indexer) apply(
	ctx context.Context,
	item *loadedRecord,
	report *domain.ScanReport,
	final bool,
) (domain.Outcome, int64) {
	switch {
	case item.err != nil:
		x.fail(report, item, item.err)
		return domain.OutcomeFailed, 0
	case item.missing:
		x.setState(domain.ScanSkipping)
		logger.Debug("skipping %s: content missing", item.ref.metaRel)
		x.count(report, domain.OutcomeSkipped)
		return domain.OutcomeSkipped, 0
	}

	if x.limiter != nil {
		if err := x.limiter.Wait(ctx); err != nil {
			x.fail(report, item, err)
			return domain.OutcomeFailed, 0
		}
	}

	var outcome domain.Outcome
	var rowID int64
	var err error
	if item.rec.Category() == domain.CategoryClassified {
		outcome, rowID, err = x.applyDocument(ctx, item)
	} else {
		outcome, rowID, err = x.applyStream(ctx, item)
	}
	if err != nil {
		x.fail(report, item, err)
		return domain.OutcomeFailed, 0
	}
	if item.duplicateOf != "" {
		if !final {
			logger.Debug("deferring %s: digest held by %s", item.ref.metaRel, item.duplicateOf)
			return outcome, 0
		}
		logger.Warn("%s duplicates %s, skipped", item.rec.Content.Path, item.duplicateOf)
	}
	logger.Debug("%s %s", outcome, item.ref.metaRel)
	x.count(report, outcome)
	return outcome, rowID
}

func (x *Indexer) applyDocument(ctx context.Context, item *loadedRecord) (domain.Outcome, int64, error) {
	item.duplicateOf = ""
	row, err := x.documentRow(item)
	if err != nil {
		return domain.OutcomeFailed, 0, err
	}

	tx, err := x.catalog.Begin(ctx)
	if err != nil {
		return domain.OutcomeFailed, 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := tx.LookupDocument(row.Entity, row.RelPath)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeFailed, 0, err
	}
	upsertText := func() error {
		if err := x.readPendingText(item); err != nil {
			return err
		}
		return tx.UpsertFullText(fullTextEntry(row, item))
	}

	var outcome domain.Outcome
	switch {
	case existing != nil && sameDocument(existing, row):
		x.setState(domain.ScanSkipping)
		outcome = domain.OutcomeSkipped
		row.ID = existing.ID
		has, err := tx.HasFullText(row.ID)
		if err != nil {
			return domain.OutcomeFailed, 0, err
		}
		if !has {
			logger.Info("restoring missing full-text row for %s", row.RelPath)
			if err := upsertText(); err != nil {
				return domain.OutcomeFailed, 0, err
			}
		}

	case existing != nil:
		x.setState(domain.ScanUpserting)
		if existing.Hash != row.Hash {
			if holder, err := tx.DocumentByHash(row.Hash); err == nil && holder.ID != existing.ID {
				item.duplicateOf = holder.RelPath
				return domain.OutcomeSkipped, 0, tx.Commit()
			} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return domain.OutcomeFailed, 0, err
			}
		}
		row.ID = existing.ID
		if err := tx.UpdateDocument(row); err != nil {
			return domain.OutcomeFailed, 0, err
		}
		if err := upsertText(); err != nil {
			return domain.OutcomeFailed, 0, err
		}
		outcome = domain.OutcomeUpdated

	default:
		x.setState(domain.ScanUpserting)
		if holder, err := tx.DocumentByHash(row.Hash); err == nil {
			item.duplicateOf = holder.RelPath
			if err := x.recordDedup(tx, item, row.Hash); err != nil {
				return domain.OutcomeFailed, 0, err
			}
			return domain.OutcomeSkipped, 0, tx.Commit()
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.OutcomeFailed, 0, err
		}

		inserted, err := tx.InsertDocument(row)
		if err != nil {
			return domain.OutcomeFailed, 0, err
		}
		if !inserted {
			// Lost an insert race; the winner's row stands.
			return domain.OutcomeSkipped, 0, tx.Commit()
		}
		if err := upsertText(); err != nil {
			return domain.OutcomeFailed, 0, err
		}
		outcome = domain.OutcomeInserted
	}

	if err := x.recordDedup(tx, item, row.Hash); err != nil {
		return domain.OutcomeFailed, 0, err
	}
	if c := item.rec.Classification; c != nil && outcome != domain.OutcomeSkipped {
		if err := tx.UpsertTraining(domain.TrainingEntry{
			DocumentID:        row.ID,
			Workflow:          item.rec.Workflow,
			SuggestedWorkflow: c.SuggestedWorkflow,
			Category:          c.Category,
			Confidence:        c.Confidence,
			Accepted:          c.Accepted,
		}); err != nil {
			return domain.OutcomeFailed, 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.OutcomeFailed, 0, err
	}
	return outcome, row.ID, nil
}

func (x *Indexer) applyStream(ctx context.Context, item *loadedRecord) (domain.Outcome, int64, error) {
	row, err := x.streamRow(item)
	if err != nil {
		return domain.OutcomeFailed, 0, err
	}

	tx, err := x.catalog.Begin(ctx)
	if err != nil {
		return domain.OutcomeFailed, 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := tx.LookupStream(row.Entity, row.RelPath)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeFailed, 0, err
	}

	var outcome domain.Outcome
	switch {
	case existing != nil && sameStream(existing, row):
		x.setState(domain.ScanSkipping)
		row.ID = existing.ID
		outcome = domain.OutcomeSkipped
	case existing != nil:
		x.setState(domain.ScanUpserting)
		row.ID = existing.ID
		if err := tx.UpdateStream(row); err != nil {
			return domain.OutcomeFailed, 0, err
		}
		outcome = domain.OutcomeUpdated
	default:
		x.setState(domain.ScanUpserting)
		inserted, err := tx.InsertStream(row)
		if err != nil {
			return domain.OutcomeFailed, 0, err
		}
		outcome = domain.OutcomeInserted
		if !inserted {
			outcome = domain.OutcomeSkipped
		}
	}

	if err := x.recordDedup(tx, item, row.Hash); err != nil {
		return domain.OutcomeFailed, 0, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OutcomeFailed, 0, err
	}
	return outcome, row.ID, nil
}

func (x *Indexer) recordDedup(tx driven.CatalogTx, item *loadedRecord, hash string) error {
	_, err := tx.RecordDedup(domain.DedupEntry{
		Hash:      hash,
		SourceID:  item.rec.ID,
		FirstSeen: item.rec.Ingest.IngestedAt.UTC(),
	})
	return err
}

// resolveLinks connects stream transcripts to the documents they
// mention. A link is only written when both rows exist, and links the
// transcript no longer supports are removed.
func (x *Indexer) resolveLinks(ctx context.Context, items []*loadedRecord, report *domain.ScanReport) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if item.err != nil || item.missing || item.rec.Category() != domain.CategoryStream {
			continue
		}
		n, err := x.linkStream(ctx, item, documentRefs(item.text))
		if err != nil {
			logger.Warn("linking %s: %v", item.rec.Content.Path, err)
			report.Failed++
			report.Failures = append(report.Failures, domain.RecordFailure{
				RecordID: item.rec.ID, Path: item.ref.metaRel, Error: err.Error(),
			})
			continue
		}
		report.Linked += n
	}
	return nil
}

func (x *Indexer) linkStream(ctx context.Context, item *loadedRecord, refs []string) (int, error) {
	tx, err := x.catalog.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	stream, err := tx.LookupStream(item.ref.entity, item.rec.Content.Path)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	docIDs := make([]int64, 0, len(refs))
	for _, ref := range refs {
		docID, err := tx.DocumentIDByPath(item.ref.entity, ref)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		docIDs = append(docIDs, docID)
	}

	dropped, err := tx.DeleteLinksForStream(stream.ID, docIDs)
	if err != nil {
		return 0, err
	}
	if dropped > 0 {
		logger.Debug("dropped %d stale links from %s", dropped, item.rec.Content.Path)
	}

	linked := 0
	for _, docID := range docIDs {
		ok, err := tx.InsertLink(domain.Link{StreamID: stream.ID, DocumentID: docID})
		if err != nil {
			return 0, err
		}
		if ok {
			linked++
		}
	}
	return linked, tx.Commit()
}

// deleteVanished removes catalog rows whose sidecar disappeared, or
// whose sidecar now describes a different content path.
func (x *Indexer) deleteVanished(
	ctx context.Context,
	entries []domain.CatalogEntry,
	refs []sidecarRef,
	items []*loadedRecord,
	report *domain.ScanReport,
) error {
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		seen[ref.key()] = true
	}
	// Rows that a readable sidecar still projects to.
	loaded := make(map[string]bool, len(items))
	current := make(map[int64]bool, len(items))
	for _, item := range items {
		if item.err == nil && !item.missing {
			loaded[item.ref.key()] = true
			current[item.rowID()] = true
		}
	}

	var stale []domain.CatalogEntry
	for _, e := range entries {
		key := e.Entity + "/" + e.MetaRelPath
		if !seen[key] {
			stale = append(stale, e)
			continue
		}
		if loaded[key] && !current[e.ID] {
			stale = append(stale, e)
		}
	}

	for _, e := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.deleteEntry(ctx, e); err != nil {
			logger.Warn("deleting catalog row %d (%s): %v", e.ID, e.MetaRelPath, err)
			report.Failed++
			report.Failures = append(report.Failures, domain.RecordFailure{Path: e.MetaRelPath, Error: err.Error()})
			continue
		}
		logger.Info("deleted catalog row for vanished %s/%s", e.Entity, e.MetaRelPath)
		x.count(report, domain.OutcomeDeleted)
	}
	return nil
}

func (x *Indexer) deleteEntry(ctx context.Context, e domain.CatalogEntry) error {
	tx, err := x.catalog.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	switch e.Kind {
	case domain.EntryDocument:
		err = tx.DeleteDocument(e.ID)
	case domain.EntryStream:
		err = tx.DeleteStream(e.ID)
	default:
		err = fmt.Errorf("unknown catalog entry kind %q", e.Kind)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// sweepFullText drops full-text rows whose document row is gone, as
// happens when metadata.db is rebuilt while fts.db is kept.
func (x *Indexer) sweepFullText(ctx context.Context) error {
	tx, err := x.catalog.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := tx.DeleteOrphanedFullText()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if n > 0 {
		logger.Info("removed %d orphaned full-text rows", n)
	}
	return nil
}

// stampSidecar writes the index_status block back to the sidecar.
func (x *Indexer) stampSidecar(ctx context.Context, item *loadedRecord, rowID int64) {
	at := x.now().UTC().Truncate(time.Second)
	rec := *item.rec
	rec.IndexStatus = &domain.IndexStatus{IndexedAt: &at, CatalogID: rowID}

	data, err := metadata.Encode(&rec)
	if err == nil {
		err = x.content.Replace(ctx, item.ref.path, data)
	}
	if err != nil {
		logger.Warn("stamping %s: %v", item.ref.metaRel, err)
	}
}

func (x *Indexer) fail(report *domain.ScanReport, item *loadedRecord, err error) {
	ierr := &domain.IndexError{RecordID: item.recordID(), Path: item.ref.metaRel, Err: err}
	logger.Warn("%v", ierr)
	report.Fail(item.recordID(), item.ref.entity+"/"+item.ref.metaRel, err)
	if x.metrics != nil {
		x.metrics.ObserveRecord(domain.OutcomeFailed)
	}
}

func (x *Indexer) count(report *domain.ScanReport, o domain.Outcome) {
	report.Count(o)
	if x.metrics != nil {
		x.metrics.ObserveRecord(o)
	}
}

// ==================== Row projection ====================

const dateLayout = "2006-01-02"

// structuredFields is the structured_json column.
type structuredFields struct {
	Subtype       string                `json:"subtype,omitempty"`
	Tags          []string              `json:"tags,omitempty"`
	Relationships []domain.Relationship `json:"relationships,omitempty"`
	Attachments   []string              `json:"attachments,omitempty"`
	MediaType     string                `json:"mimetype,omitempty"`
}

func (x *Indexer) documentRow(item *loadedRecord) (*domain.DocumentRow, error) {
	rec := item.rec
	originJSON, err := domain.OriginJSON(rec.Origin)
	if err != nil {
		return nil, err
	}
	structured, err := json.Marshal(structuredFields{
		Subtype:       rec.Subtype,
		Tags:          rec.Tags,
		Relationships: rec.Relationships,
		Attachments:   rec.Content.Attachments,
		MediaType:     rec.Content.MediaType,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding structured fields: %w", err)
	}

	row := &domain.DocumentRow{
		ID:             item.rowID(),
		DocumentID:     rec.ID,
		Entity:         item.ref.entity,
		Date:           rec.CreatedAt.UTC().Format(dateLayout),
		Filename:       path.Base(rec.Content.Path),
		RelPath:        rec.Content.Path,
		MetaRelPath:    item.ref.metaRel,
		Hash:           item.hash,
		Size:           item.size,
		Type:           rec.Type,
		Source:         rec.Source,
		Workflow:       rec.Workflow,
		OriginJSON:     originJSON,
		StructuredJSON: string(structured),
		IndexedAt:      x.now().UTC().Truncate(time.Second),
		ModTime:        item.modTime,
	}
	if c := rec.Classification; c != nil {
		row.Category = c.Category
		row.Confidence = c.Confidence
	}
	return row, nil
}

func (x *Indexer) streamRow(item *loadedRecord) (*domain.StreamRow, error) {
	rec := item.rec
	originJSON, err := domain.OriginJSON(rec.Origin)
	if err != nil {
		return nil, err
	}
	id, err := metadata.ParseDocumentID(rec.ID)
	if err != nil {
		return nil, err
	}
	return &domain.StreamRow{
		ID:               item.rowID(),
		DocumentID:       rec.ID,
		Entity:           item.ref.entity,
		Kind:             rec.Source,
		ChannelOrMailbox: id.Scope,
		Date:             rec.CreatedAt.UTC().Format(dateLayout),
		RelPath:          rec.Content.Path,
		MetaRelPath:      item.ref.metaRel,
		Hash:             item.hash,
		OriginJSON:       originJSON,
		IndexedAt:        x.now().UTC().Truncate(time.Second),
		Size:             item.size,
		ModTime:          item.modTime,
	}, nil
}

// fullTextEntry gathers the searchable text of a document.
func fullTextEntry(row *domain.DocumentRow, item *loadedRecord) domain.FullTextEntry {
	rec := item.rec
	parts := []string{rec.Type, rec.Subtype, rec.Workflow, rec.Source}
	parts = append(parts, rec.Tags...)
	if rec.Origin != nil {
		parts = append(parts, rec.Origin.Summary())
	}
	if rec.Classification != nil {
		parts = append(parts, rec.Classification.Category)
	}
	parts = append(parts, item.text)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return domain.FullTextEntry{
		RowID:         row.ID,
		Filename:      row.Filename,
		SearchContent: strings.Join(nonEmpty, "\n"),
	}
}

// sameDocument compares the sidecar-derived columns of two rows.
func sameDocument(a, b *domain.DocumentRow) bool {
	return a.DocumentID == b.DocumentID &&
		a.Entity == b.Entity &&
		a.Date == b.Date &&
		a.Filename == b.Filename &&
		a.RelPath == b.RelPath &&
		a.MetaRelPath == b.MetaRelPath &&
		a.Hash == b.Hash &&
		a.Size == b.Size &&
		a.Type == b.Type &&
		a.Source == b.Source &&
		a.Workflow == b.Workflow &&
		a.Category == b.Category &&
		sameFloat(a.Confidence, b.Confidence) &&
		a.OriginJSON == b.OriginJSON &&
		a.StructuredJSON == b.StructuredJSON &&
		a.ModTime.Equal(b.ModTime)
}

func sameStream(a, b *domain.StreamRow) bool {
	return a.DocumentID == b.DocumentID &&
		a.Kind == b.Kind &&
		a.ChannelOrMailbox == b.ChannelOrMailbox &&
		a.Date == b.Date &&
		a.MetaRelPath == b.MetaRelPath &&
		a.Hash == b.Hash &&
		a.Size == b.Size &&
		a.ModTime.Equal(b.ModTime) &&
		a.OriginJSON == b.OriginJSON
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// documentRefs extracts distinct document paths mentioned in text.
func documentRefs(text string) []string {
	matches := linkPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		refs = append(refs, m)
	}
	return refs
}

func isText(mediaType, name string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if strings.HasPrefix(mt, "text/") || textMediaTypes[mt] {
		return true
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".txt", ".json", ".html", ".csv", ".eml":
		return true
	}
	return false
}
