package digest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

func TestOf_KnownVector(t *testing.T) {
	d := Of([]byte("test"))
	assert.Equal(t, Digest("sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"), d)
	assert.Equal(t, "sha256", d.Algorithm())
	assert.Equal(t, "9f86d081", d.Short())
	assert.Len(t, d.Hex(), 64)
}

func TestOf_Deterministic(t *testing.T) {
	a := Of([]byte("hello world!"))
	b := Of([]byte("hello world!"))
	c := Of([]byte("hello world?"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestReader_MatchesOf(t *testing.T) {
	content := strings.Repeat("archive", 1000)
	d, n, err := Reader(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, Of([]byte(content)), d)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 abc"), 0o600))

	d, n, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, Of([]byte("%PDF-1.4 abc")), d)

	_, _, err = File(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParse(t *testing.T) {
	valid := "sha256:" + strings.Repeat("a1", 32)

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"valid", valid, true},
		{"uppercase hex", "sha256:" + strings.Repeat("A1", 32), false},
		{"wrong algorithm", "md5:" + strings.Repeat("a1", 32), false},
		{"short", "sha256:abc", false},
		{"no separator", strings.Repeat("a1", 32), false},
		{"non hex", "sha256:" + strings.Repeat("zz", 32), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.input, d.String())
				assert.True(t, Valid(tt.input))
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidDigest)
				assert.False(t, Valid(tt.input))
			}
		})
	}
}

func TestShort_Truncated(t *testing.T) {
	assert.Equal(t, "abc", Digest("sha256:abc").Short())
	assert.Equal(t, "", Digest("").Short())
}
