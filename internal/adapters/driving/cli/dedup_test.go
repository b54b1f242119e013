package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

func TestDedupCheckCmd_File(t *testing.T) {
	ts := setupTestServices(t)
	ts.dedup.hash = "sha256:ab"
	ts.dedup.entry = &domain.DedupEntry{
		Hash:      "sha256:ab",
		SourceID:  "mail=jro-expense/x",
		FirstSeen: time.Date(2025, 10, 24, 8, 30, 0, 0, time.UTC),
	}
	file := writeTempFile(t, "copy.pdf", "x")

	out, err := execute(t, "dedup", "check", file)
	require.NoError(t, err)
	assert.Equal(t, file, ts.dedup.checked)
	assert.Contains(t, out, "seen: sha256:ab")
	assert.Contains(t, out, "First seen: 2025-10-24T08:30:00Z")
	assert.Contains(t, out, "mail=jro-expense/x")
}

func TestDedupCheckCmd_NewHash(t *testing.T) {
	ts := setupTestServices(t)
	ts.dedup.err = domain.ErrNotFound

	out, err := execute(t, "dedup", "check", "--hash", "sha256:cd")
	require.NoError(t, err)
	assert.Equal(t, "sha256:cd", ts.dedup.checked)
	assert.Contains(t, out, "new: sha256:cd")
}

func TestDedupCheckCmd_InvalidHash(t *testing.T) {
	ts := setupTestServices(t)
	ts.dedup.err = domain.NewValidationError("hash", "md5:x", domain.ErrInvalidDigest)

	_, err := execute(t, "dedup", "check", "--hash", "md5:x")
	assert.ErrorIs(t, err, domain.ErrInvalidDigest)
}

func TestDedupListCmd(t *testing.T) {
	ts := setupTestServices(t)

	out, err := execute(t, "dedup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Ledger is empty.")

	ts.dedup.entries = []domain.DedupEntry{{Hash: "sha256:ab", SourceID: "mail=x", FirstSeen: time.Unix(0, 0)}}
	out, err = execute(t, "dedup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "sha256:ab")
	assert.Contains(t, out, "1970-01-01T00:00:00Z")
}
