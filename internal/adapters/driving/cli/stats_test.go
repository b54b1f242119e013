package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

func newStats() *domain.CatalogStats {
	return &domain.CatalogStats{
		Documents:  3,
		Streams:    1,
		Links:      2,
		Dedup:      4,
		Training:   3,
		FullText:   3,
		ByEntity:   map[string]int{"jro": 2, "acme": 1},
		ByWorkflow: map[string]int{"jro-expense": 2, "acme-invoices": 1},
	}
}

func TestStatsCmd(t *testing.T) {
	ts := setupTestServices(t)
	ts.documents.stats = newStats()

	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "documents")
	assert.Contains(t, out, "jro-expense")
	assert.Less(t, strings.Index(out, "acme"), strings.Index(out, "jro "))
}

func TestCountRows(t *testing.T) {
	rows := countRows(map[string]int{"b": 2, "a": 1})
	assert.Equal(t, [][]string{{"a", "1"}, {"b", "2"}}, rows)
}

func TestRunsCmd(t *testing.T) {
	ts := setupTestServices(t)
	start := time.Date(2025, 10, 24, 8, 30, 0, 0, time.UTC)
	ts.documents.runs = []domain.ScanReport{{
		RunID:     "run-1",
		StartedAt: start,
		EndedAt:   start.Add(1500 * time.Millisecond),
		Processed: 5,
		Inserted:  4,
		Failed:    1,
	}}

	out, err := execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "*")
}

func TestRunsCmd_Empty(t *testing.T) {
	setupTestServices(t)

	out, err := execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No index runs recorded.")
}
