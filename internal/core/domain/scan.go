package domain

import (
	"fmt"
	"time"
)

// ScanState is the indexer's lifecycle state.
type ScanState string

// Indexer states.
const (
	ScanIdle      ScanState = "idle"
	ScanScanning  ScanState = "scanning"
	ScanUpserting ScanState = "upserting"
	ScanSkipping  ScanState = "skipping"
)

// Outcome is the per-record result of an index run.
type Outcome string

// Record outcomes.
const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeDeleted  Outcome = "deleted"
)

// RecordFailure describes a record that failed to index.
type RecordFailure struct {
	RecordID string `json:"record_id,omitempty"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// ScanReport summarises one indexer run.
type ScanReport struct {
	RunID     string
	Entity    string
	StartedAt time.Time
	EndedAt   time.Time

	// Processed counts every sidecar evaluated, whatever the outcome.
	Processed int
	Inserted  int
	Updated   int
	Skipped   int
	Failed    int
	Deleted   int
	Linked    int

	Failures []RecordFailure
}

// Count tallies one outcome.
func (r *ScanReport) Count(o Outcome) {
	switch o {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	case OutcomeDeleted:
		r.Deleted++
		return
	}
	r.Processed++
}

// Fail records a failed record.
func (r *ScanReport) Fail(recordID, path string, err error) {
	r.Count(OutcomeFailed)
	r.Failures = append(r.Failures, RecordFailure{RecordID: recordID, Path: path, Error: err.Error()})
}

// Duration returns how long the run took.
func (r *ScanReport) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Summary returns the processed/skipped/failed line printed after a run.
func (r *ScanReport) Summary() string {
	return fmt.Sprintf("processed=%d inserted=%d updated=%d skipped=%d failed=%d deleted=%d linked=%d",
		r.Processed, r.Inserted, r.Updated, r.Skipped, r.Failed, r.Deleted, r.Linked)
}
