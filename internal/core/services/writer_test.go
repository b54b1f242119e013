package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/layout"
	"github.com/custodia-labs/archivist/internal/core/metadata"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

var (
	fixedNow  = time.Date(2025, 10, 24, 8, 30, 0, 0, time.UTC)
	createdAt = time.Date(2025, 10, 23, 14, 5, 9, 0, time.UTC)
	errDisk   = errors.New("disk full")
)

// faultyStore fails selected operations of a real filesystem store.
type faultyStore struct {
	*filesystem.Store
	failPlace   func(path string) bool
	failReplace func(path string) bool
}

func (f *faultyStore) Place(ctx context.Context, path string, data []byte) error {
	if f.failPlace != nil && f.failPlace(path) {
		return errDisk
	}
	return f.Store.Place(ctx, path, data)
}

func (f *faultyStore) Replace(ctx context.Context, path string, data []byte) error {
	if f.failReplace != nil && f.failReplace(path) {
		return errDisk
	}
	return f.Store.Replace(ctx, path, data)
}

// recordingWriteMetrics collects observed writes.
type recordingWriteMetrics struct {
	mu     sync.Mutex
	writes []string
}

func (m *recordingWriteMetrics) ObserveWrite(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, kind+"/"+outcome)
}

func newTestWriter(t *testing.T, settings domain.Settings) (*Writer, *layout.Resolver) {
	t.Helper()
	return newTestWriterWithStore(t, settings, filesystem.NewStore())
}

func newTestWriterWithStore(t *testing.T, settings domain.Settings, store driven.ContentStore) (*Writer, *layout.Resolver) {
	t.Helper()
	resolver, err := layout.NewResolver(t.TempDir())
	require.NoError(t, err)

	w := NewWriter(resolver, store, settings)
	w.SetClock(func() time.Time { return fixedNow })
	return w, resolver
}

func expenseRequest(name string, content []byte) domain.DocumentRequest {
	return domain.DocumentRequest{
		Entity:           "jro",
		Source:           "mail",
		Workflow:         "jro-expense",
		Name:             name,
		OriginalFilename: "receipt.pdf",
		Content:          content,
		MediaType:        "application/pdf",
		CreatedAt:        createdAt,
		Type:             "receipt",
		Origin: &domain.MailOrigin{
			MessageID: "<abc@mail.example>",
			From:      "billing@acme.example",
			Subject:   "Your receipt",
		},
		Tags: []string{"expense"},
	}
}

func readRecord(t *testing.T, path string) *domain.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	v, err := metadata.NewValidator()
	require.NoError(t, err)
	rec, err := v.Decode(data)
	require.NoError(t, err)
	return rec
}

func visibleFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestWriteDocument_Layout(t *testing.T) {
	w, resolver := newTestWriter(t, domain.DefaultSettings())
	content := []byte("%PDF-1.4 receipt")

	res, err := w.WriteDocument(context.Background(), expenseRequest("Invoice ACME #42", content))
	require.NoError(t, err)

	entityRoot := filepath.Join(resolver.Root, "entities", "jro")
	wantRel := "workflows/jro-expense/2025/2025-10-23-mail-invoice-acme-42.pdf"
	assert.Equal(t, filepath.Join(entityRoot, filepath.FromSlash(wantRel)), res.ContentPath)
	assert.Equal(t, filepath.Join(entityRoot, "metadata", filepath.FromSlash(wantRel)+".json"), res.MetadataPath)
	assert.True(t, res.Created)
	assert.False(t, res.Repaired)

	d := digest.Of(content)
	assert.Equal(t, "mail=jro-expense/2025-10-23T14:05:09Z/"+d.String(), res.DocumentID)

	rec := readRecord(t, res.MetadataPath)
	assert.Equal(t, res.DocumentID, rec.ID)
	assert.Equal(t, wantRel, rec.Content.Path)
	assert.Equal(t, d.String(), rec.Content.Hash)
	assert.Equal(t, int64(len(content)), rec.Content.SizeBytes)
	assert.Equal(t, "application/pdf", rec.Content.MediaType)
	assert.Equal(t, "mail@"+domain.DefaultConnectorVersion, rec.Ingest.Connector)
	assert.Equal(t, fixedNow, rec.Ingest.IngestedAt)
	assert.Equal(t, createdAt, rec.CreatedAt)
	assert.Equal(t, domain.CategoryClassified, rec.Category())

	origin, ok := rec.Origin.(*domain.MailOrigin)
	require.True(t, ok)
	assert.Equal(t, "Your receipt", origin.Subject)

	data, err := os.ReadFile(res.ContentPath)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestWriteDocument_NameFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		reqName  string
		original string
		want     string
	}{
		{"explicit name", "Quarterly Report", "scan.pdf", "2025-10-23-mail-quarterly-report.pdf"},
		{"original filename stem", "", `C:\Users\jro\Scan 0001.PDF`, "2025-10-23-mail-scan-0001.pdf"},
		{"creation time", "", "", "2025-10-23-mail-" + layout.DefaultBaseName(createdAt) + ".pdf"},
		{"unsanitizable name", "###", "", "2025-10-23-mail-untitled.pdf"},
		{"name carrying the extension", "receipt.pdf", "scan.pdf", "2025-10-23-mail-receipt.pdf"},
		{"extension in another case", "Receipt.PDF", "", "2025-10-23-mail-receipt.pdf"},
		{"unrelated extension kept", "notes.txt", "", "2025-10-23-mail-notes.txt.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newTestWriter(t, domain.DefaultSettings())
			req := expenseRequest(tt.reqName, []byte("content"))
			req.OriginalFilename = tt.original

			res, err := w.WriteDocument(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, filepath.Base(res.ContentPath))
		})
	}
}

func TestWriteDocument_Idempotent(t *testing.T) {
	w, _ := newTestWriter(t, domain.DefaultSettings())
	metrics := &recordingWriteMetrics{}
	w.SetMetrics(metrics)
	req := expenseRequest("receipt", []byte("same bytes"))

	first, err := w.WriteDocument(context.Background(), req)
	require.NoError(t, err)
	before, err := os.ReadFile(first.MetadataPath)
	require.NoError(t, err)

	// A later ingest time must not change the stored record.
	w.SetClock(func() time.Time { return fixedNow.Add(time.Hour) })
	second, err := w.WriteDocument(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.False(t, second.Repaired)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ContentPath, second.ContentPath)

	after, err := os.ReadFile(first.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Len(t, visibleFiles(t, filepath.Dir(first.ContentPath)), 1)
	assert.Equal(t, []string{"document/created", "document/unchanged"}, metrics.writes)
}

func TestWriteDocument_CollisionSuffix(t *testing.T) {
	w, _ := newTestWriter(t, domain.DefaultSettings())
	ctx := context.Background()

	first, err := w.WriteDocument(ctx, expenseRequest("receipt", []byte("version one")))
	require.NoError(t, err)

	second, err := w.WriteDocument(ctx, expenseRequest("receipt", []byte("version two")))
	require.NoError(t, err)

	d := digest.Of([]byte("version two"))
	assert.Equal(t, "2025-10-23-mail-receipt-"+d.Short()+".pdf", filepath.Base(second.ContentPath))
	assert.True(t, second.Created)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)

	rec := readRecord(t, second.MetadataPath)
	assert.True(t, strings.HasSuffix(rec.Content.Path, "-"+d.Short()+".pdf"))

	// Re-writing the second version lands on the suffixed file again.
	again, err := w.WriteDocument(ctx, expenseRequest("receipt", []byte("version two")))
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, second.ContentPath, again.ContentPath)

	// Original content untouched.
	data, err := os.ReadFile(first.ContentPath)
	require.NoError(t, err)
	assert.Equal(t, "version one", string(data))
}

func TestWriteDocument_DigestCollision(t *testing.T) {
	w, _ := newTestWriter(t, domain.DefaultSettings())
	ctx := context.Background()

	first, err := w.WriteDocument(ctx, expenseRequest("receipt", []byte("version one")))
	require.NoError(t, err)

	// Someone else already holds the digest-suffixed name.
	content := []byte("version two")
	suffixed := filepath.Join(filepath.Dir(first.ContentPath),
		layout.WithDigestSuffix(filepath.Base(first.ContentPath), digest.Of(content)))
	require.NoError(t, os.WriteFile(suffixed, []byte("squatter"), 0o644))

	_, err = w.WriteDocument(ctx, expenseRequest("receipt", content))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDigestCollision))
	assert.True(t, errors.Is(err, domain.ErrWrite))

	data, err := os.ReadFile(suffixed)
	require.NoError(t, err)
	assert.Equal(t, "squatter", string(data))
}

func TestWriteDocument_Attachments(t *testing.T) {
	w, resolver := newTestWriter(t, domain.DefaultSettings())
	req := expenseRequest("receipt", []byte("the mail body"))
	req.Attachments = []domain.AttachmentInput{
		{Content: []byte("png bytes"), MediaType: "image/png"},
		{Content: []byte("notes"), Filename: "notes.TXT"},
	}

	res, err := w.WriteDocument(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.AttachmentPaths, 2)

	dir := filepath.Dir(res.ContentPath)
	assert.Equal(t, filepath.Join(dir, "2025-10-23-mail-receipt-att1.png"), res.AttachmentPaths[0])
	assert.Equal(t, filepath.Join(dir, "2025-10-23-mail-receipt-att2.txt"), res.AttachmentPaths[1])

	rec := readRecord(t, res.MetadataPath)
	for i, p := range res.AttachmentPaths {
		rel, err := resolver.RelToEntity("jro", p)
		require.NoError(t, err)
		assert.Equal(t, rel, rec.Content.Attachments[i])
		assert.FileExists(t, p)
	}

	// Identical attachments are reused on rewrite.
	again, err := w.WriteDocument(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, res.AttachmentPaths, again.AttachmentPaths)
}

func TestWriteDocument_AttachmentFailureRollsBack(t *testing.T) {
	store := &faultyStore{
		Store:     filesystem.NewStore(),
		failPlace: func(p string) bool { return strings.HasSuffix(p, "-att2.txt") },
	}
	w, resolver := newTestWriterWithStore(t, domain.DefaultSettings(), store)
	req := expenseRequest("receipt", []byte("the mail body"))
	req.Attachments = []domain.AttachmentInput{
		{Content: []byte("png bytes"), MediaType: "image/png"},
		{Content: []byte("notes"), MediaType: "text/plain"},
	}

	_, err := w.WriteDocument(context.Background(), req)
	require.Error(t, err)

	var werr *domain.WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "write attachment", werr.Op)
	assert.True(t, werr.CleanedUp)
	assert.True(t, strings.HasSuffix(werr.Path, "-att2.txt"))
	assert.True(t, errors.Is(err, errDisk))

	dir := filepath.Join(resolver.Root, "entities", "jro", "workflows", "jro-expense", "2025")
	assert.Empty(t, visibleFiles(t, dir))
	assert.NoDirExists(t, filepath.Join(resolver.Root, "entities", "jro", "metadata"))
}

func TestWriteDocument_MetadataFailureRollsBack(t *testing.T) {
	store := &faultyStore{
		Store:       filesystem.NewStore(),
		failReplace: func(p string) bool { return strings.HasSuffix(p, ".json") },
	}
	w, resolver := newTestWriterWithStore(t, domain.DefaultSettings(), store)

	_, err := w.WriteDocument(context.Background(), expenseRequest("receipt", []byte("body")))
	require.Error(t, err)

	var werr *domain.WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "write metadata", werr.Op)
	assert.True(t, werr.CleanedUp)

	dir := filepath.Join(resolver.Root, "entities", "jro", "workflows", "jro-expense", "2025")
	assert.Empty(t, visibleFiles(t, dir))
}

func TestWriteDocument_RepairsMissingSidecar(t *testing.T) {
	w, _ := newTestWriter(t, domain.DefaultSettings())
	metrics := &recordingWriteMetrics{}
	w.SetMetrics(metrics)
	req := expenseRequest("receipt", []byte("crash victim"))

	first, err := w.WriteDocument(context.Background(), req)
	require.NoError(t, err)

	// Crash after the content became visible but before the sidecar did.
	require.NoError(t, os.Remove(first.MetadataPath))

	res, err := w.WriteDocument(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.False(t, res.Created)
	assert.Equal(t, first.DocumentID, res.DocumentID)
	assert.FileExists(t, res.MetadataPath)

	// A corrupt sidecar is repaired too.
	require.NoError(t, os.WriteFile(res.MetadataPath, []byte("{not json"), 0o644))
	res, err = w.WriteDocument(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, first.DocumentID, readRecord(t, res.MetadataPath).ID)

	assert.Equal(t, []string{"document/created", "document/repaired", "document/repaired"}, metrics.writes)
}

func TestWriteDocument_ValidationBeforeDisk(t *testing.T) {
	limited := domain.DefaultSettings()
	limited.MaxContentBytes = 8

	tests := []struct {
		name     string
		settings domain.Settings
		mutate   func(*domain.DocumentRequest)
		wantErr  error
	}{
		{"uppercase entity", domain.DefaultSettings(), func(r *domain.DocumentRequest) { r.Entity = "JRO" }, domain.ErrInvalidIdentifier},
		{"traversal workflow", domain.DefaultSettings(), func(r *domain.DocumentRequest) { r.Workflow = "../etc" }, domain.ErrInvalidIdentifier},
		{"missing source", domain.DefaultSettings(), func(r *domain.DocumentRequest) { r.Source = "" }, domain.ErrInvalidIdentifier},
		{"empty content", domain.DefaultSettings(), func(r *domain.DocumentRequest) { r.Content = nil }, domain.ErrEmptyContent},
		{"too large", limited, func(r *domain.DocumentRequest) { r.Content = []byte("more than eight bytes") }, domain.ErrContentTooLarge},
		{"empty attachment", domain.DefaultSettings(), func(r *domain.DocumentRequest) {
			r.Attachments = []domain.AttachmentInput{{MediaType: "image/png"}}
		}, domain.ErrEmptyContent},
		{"origin mismatch", domain.DefaultSettings(), func(r *domain.DocumentRequest) {
			r.Origin = &domain.ChatOrigin{}
		}, domain.ErrInvalidInput},
		{"bad confidence", domain.DefaultSettings(), func(r *domain.DocumentRequest) {
			c := 1.5
			r.Classification = &domain.Classification{Confidence: &c}
		}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resolver := newTestWriter(t, tt.settings)
			metrics := &recordingWriteMetrics{}
			w.SetMetrics(metrics)
			req := expenseRequest("receipt", []byte("tiny"))
			tt.mutate(&req)

			_, err := w.WriteDocument(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			assert.NoDirExists(t, resolver.EntitiesRoot())
			assert.Equal(t, []string{"document/rejected"}, metrics.writes)
		})
	}
}

func TestWriteDocument_Manifest(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Manifest = true
	w, _ := newTestWriter(t, settings)
	ctx := context.Background()

	first, err := w.WriteDocument(ctx, expenseRequest("receipt", []byte("first")))
	require.NoError(t, err)
	_, err = w.WriteDocument(ctx, expenseRequest("receipt", []byte("first")))
	require.NoError(t, err)
	second, err := w.WriteDocument(ctx, expenseRequest("invoice", []byte("second")))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(first.ContentPath), layout.ManifestFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "unchanged writes are not repeated")

	var entry manifestEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, first.DocumentID, entry.DocumentID)
	assert.Equal(t, "metadata/workflows/jro-expense/2025/2025-10-23-mail-receipt.pdf.json", entry.MetadataPath)
	assert.True(t, fixedNow.Equal(entry.Timestamp))

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, second.DocumentID, entry.DocumentID)
}

func TestWriteDocument_ManifestDisabledByDefault(t *testing.T) {
	w, _ := newTestWriter(t, domain.DefaultSettings())

	res, err := w.WriteDocument(context.Background(), expenseRequest("receipt", []byte("body")))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(res.ContentPath), layout.ManifestFile))
}

func TestWriteStream(t *testing.T) {
	w, resolver := newTestWriter(t, domain.DefaultSettings())
	content := []byte("# general\n\n09:00 jro: see workflows/jro-expense/2025/2025-10-23-mail-receipt.pdf\n")

	res, err := w.WriteStream(context.Background(), domain.StreamRequest{
		Entity:    "jro",
		Source:    "slack",
		Context:   "general",
		Content:   content,
		MediaType: "text/markdown",
		CreatedAt: createdAt,
		Origin:    &domain.ChatOrigin{ChannelName: "general"},
	})
	require.NoError(t, err)

	wantRel := "streams/slack/general/2025/2025-10-23.md"
	assert.Equal(t, filepath.Join(resolver.Root, "entities", "jro", filepath.FromSlash(wantRel)), res.ContentPath)
	assert.Equal(t, "slack=general/2025-10-23T14:05:09Z/"+digest.Of(content).String(), res.DocumentID)

	rec := readRecord(t, res.MetadataPath)
	assert.Equal(t, wantRel, rec.Content.Path)
	assert.Empty(t, rec.Workflow)
	assert.Equal(t, domain.CategoryStream, rec.Category())
}

func TestWriteStream_Validation(t *testing.T) {
	w, resolver := newTestWriter(t, domain.DefaultSettings())

	_, err := w.WriteStream(context.Background(), domain.StreamRequest{
		Entity:  "jro",
		Source:  "slack",
		Context: "Team Chat",
		Content: []byte("hello"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidIdentifier))
	assert.NoDirExists(t, resolver.EntitiesRoot())
}
