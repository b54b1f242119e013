// Package digest computes content addresses.
//
// A Digest is the algorithm-tagged lowercase hex encoding of a SHA-256
// hash, for example "sha256:9f86d0...". It is used both as content
// identity in document IDs and as the catalog's dedup key.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Algorithm is the only supported hash algorithm.
const Algorithm = "sha256"

// ShortLen is the number of hex characters used in filename suffixes.
const ShortLen = 8

const hexLen = sha256.Size * 2

// Digest is a canonical "{algorithm}:{lowercase-hex}" content address.
type Digest string

// Of returns the digest of data.
func Of(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(Algorithm + ":" + hex.EncodeToString(sum[:]))
}

// Reader hashes everything read from r and returns the digest and byte count.
func Reader(r io.Reader) (Digest, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hashing content: %w", err)
	}
	return Digest(Algorithm + ":" + hex.EncodeToString(h.Sum(nil))), n, nil
}

// File hashes the file at path.
func File(path string) (Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return Reader(f)
}

// Parse validates s and returns it as a Digest.
func Parse(s string) (Digest, error) {
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok || algo != Algorithm || len(hexPart) != hexLen {
		return "", domain.ErrInvalidDigest
	}
	for i := 0; i < len(hexPart); i++ {
		c := hexPart[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", domain.ErrInvalidDigest
		}
	}
	return Digest(s), nil
}

// Valid reports whether s is a well-formed digest.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the canonical form.
func (d Digest) String() string {
	return string(d)
}

// Algorithm returns the algorithm tag.
func (d Digest) Algorithm() string {
	algo, _, _ := strings.Cut(string(d), ":")
	return algo
}

// Hex returns the hex part.
func (d Digest) Hex() string {
	_, h, _ := strings.Cut(string(d), ":")
	return h
}

// Short returns the first ShortLen hex characters, used to
// disambiguate colliding filenames.
func (d Digest) Short() string {
	h := d.Hex()
	if len(h) < ShortLen {
		return h
	}
	return h[:ShortLen]
}
