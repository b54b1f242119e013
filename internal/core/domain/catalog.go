package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DocumentRow is the catalog projection of a classified record.
type DocumentRow struct {
	// ID is the caller-controlled row identifier, shared with the full-text row.
	ID int64

	// DocumentID is the record's document identifier.
	DocumentID string

	Entity   string
	Date     string
	Filename string

	// RelPath is the content path relative to the entity root.
	RelPath string

	// MetaRelPath is the sidecar path relative to the entity root.
	MetaRelPath string

	// Hash is the content digest, unique within the catalog.
	Hash string

	Size       int64
	Type       string
	Source     string
	Workflow   string
	Category   string
	Confidence *float64

	OriginJSON     string
	StructuredJSON string

	IndexedAt time.Time

	// ModTime is the content file's modification time when it was last hashed.
	ModTime time.Time
}

// StreamRow is the catalog projection of a stream record.
type StreamRow struct {
	ID               int64
	DocumentID       string
	Entity           string
	Kind             string
	ChannelOrMailbox string
	Date             string
	RelPath          string
	MetaRelPath      string
	Hash             string
	OriginJSON       string
	IndexedAt        time.Time
	Size             int64
	ModTime          time.Time
}

// Link connects a stream row to a document row it references.
type Link struct {
	StreamID   int64
	DocumentID int64
}

// DedupEntry is a row of the append-only dedup ledger.
type DedupEntry struct {
	Hash      string
	SourceID  string
	FirstSeen time.Time
}

// TrainingEntry is the classifier feedback for one catalogued document.
type TrainingEntry struct {
	DocumentID        int64
	Workflow          string
	SuggestedWorkflow string
	Category          string
	Confidence        *float64
	Accepted          *bool
}

// FullTextEntry is the searchable text of a document row.
type FullTextEntry struct {
	RowID         int64
	Filename      string
	SearchContent string
}

// CatalogStats summarises catalog contents.
type CatalogStats struct {
	Documents  int
	Streams    int
	Links      int
	Dedup      int
	Training   int
	FullText   int
	ByEntity   map[string]int
	ByWorkflow map[string]int
}

// AlignmentReport lists rows that break full-text alignment.
type AlignmentReport struct {
	// MissingFullText are document rows without a full-text row.
	MissingFullText []int64

	// Orphaned are full-text rows without a document row.
	Orphaned []int64
}

// Aligned returns true when every document row has exactly one full-text row.
func (r AlignmentReport) Aligned() bool {
	return len(r.MissingFullText) == 0 && len(r.Orphaned) == 0
}

// EntryKind names the catalog table a row lives in.
type EntryKind string

// Catalog row kinds.
const (
	EntryDocument EntryKind = "document"
	EntryStream   EntryKind = "stream"
)

// CatalogEntry is the minimal view of a catalog row used to detect
// sidecars that have disappeared and content that has not changed.
type CatalogEntry struct {
	Kind        EntryKind
	ID          int64
	Entity      string
	MetaRelPath string

	// Fingerprint of the content when it was last indexed.
	Hash    string
	Size    int64
	ModTime time.Time
}

// RowID derives the catalog row identifier of a content path. It is the
// first 63 bits of sha256(kind, entity, rel_path), so the same tree
// always produces the same identifiers and full-text rowids, whatever
// order rows are inserted in.
func RowID(kind EntryKind, entity, relPath string) int64 {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(entity))
	h.Write([]byte{0})
	h.Write([]byte(relPath))
	id := int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]) >> 1)
	if id == 0 {
		return 1
	}
	return id
}
