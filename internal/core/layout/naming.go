package layout

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/archivist/internal/core/digest"
)

const (
	// MaxBaseLen bounds the sanitized base name, extension excluded.
	MaxBaseLen = 120

	// Placeholder replaces a base name that sanitizes to nothing.
	Placeholder = "untitled"

	// DefaultExt is used when neither the original name nor the media
	// type yields an extension.
	DefaultExt = ".bin"

	dateLayout   = "2006-01-02"
	maxExtLength = 16
)

var extensions = map[string]string{
	"application/pdf":    ".pdf",
	"text/plain":         ".txt",
	"text/html":          ".html",
	"text/markdown":      ".md",
	"application/json":   ".json",
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"application/zip":    ".zip",
	"application/x-gzip": ".gz",
	"application/gzip":   ".gz",
	"text/csv":           ".csv",
	"message/rfc822":     ".eml",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
}

// Sanitize turns an untrusted name fragment into a safe filename stem.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	inSpace := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}

	s := collapseHyphens(b.String())
	s = strings.Trim(s, "-.")
	if len(s) > MaxBaseLen {
		s = strings.TrimRight(s[:MaxBaseLen], "-.")
	}
	if s == "" {
		return Placeholder
	}
	return s
}

func collapseHyphens(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

// Filename returns "YYYY-MM-DD-{source}-{base}[-{suffix}]{ext}".
// base is sanitized; source must already be a valid identifier.
func Filename(date time.Time, source, base, ext, suffix string) string {
	stem := date.UTC().Format(dateLayout) + "-" + source + "-" + Sanitize(base)
	if suffix != "" {
		stem += "-" + suffix
	}
	return stem + ext
}

// StreamFilename returns "YYYY-MM-DD[-{suffix}]{ext}".
func StreamFilename(date time.Time, ext, suffix string) string {
	stem := date.UTC().Format(dateLayout)
	if suffix != "" {
		stem += "-" + suffix
	}
	return stem + ext
}

// WithDigestSuffix inserts the short digest before the extension.
func WithDigestSuffix(name string, d digest.Digest) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + d.Short() + ext
}

// AttachmentName returns the name of the n-th (1-based) attachment of
// the content file name.
func AttachmentName(name string, n int, ext string) string {
	stem := strings.TrimSuffix(name, path.Ext(name))
	return fmt.Sprintf("%s-att%d%s", stem, n, ext)
}

// DefaultBaseName is the base name used when the caller supplies none:
// the creation time in base36 seconds.
func DefaultBaseName(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 36)
}

// ExtensionFor picks a file extension (with leading dot), preferring the
// original filename's extension over the media type.
func ExtensionFor(mediaType, originalName string) string {
	if ext := cleanExt(path.Ext(strings.ReplaceAll(originalName, `\`, "/"))); ext != "" {
		return ext
	}
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := extensions[mt]; ok {
		return ext
	}
	return DefaultExt
}

func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}
