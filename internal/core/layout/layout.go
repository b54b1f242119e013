// Package layout maps provenance to repository paths and filenames.
//
// Everything here is pure: no function touches the filesystem. The
// repository is partitioned by entity and bucketed by year:
//
//	{root}/entities/{entity}/workflows/{workflow}/{YYYY}/{YYYY-MM-DD}-{source}-{name}{ext}
//	{root}/entities/{entity}/streams/{source}/{context}/{YYYY}/{YYYY-MM-DD}{ext}
//	{root}/entities/{entity}/metadata/...   (sidecars, parallel to the content tree)
//	{root}/indexes/                          (catalog databases)
package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Directory names inside the repository.
const (
	EntitiesDir  = "entities"
	WorkflowsDir = "workflows"
	StreamsDir   = "streams"
	MetadataDir  = "metadata"
	IndexesDir   = "indexes"
)

// ManifestFile is the newly-written-records feed in a content directory.
const ManifestFile = "manifest.jsonl"

// SidecarExt is appended to a content filename to name its sidecar.
const SidecarExt = ".json"

// MaxIdentifierLen bounds entity, source, workflow and context identifiers.
const MaxIdentifierLen = 64

var identifierPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateIdentifier checks value against the identifier pattern.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return domain.NewValidationError(field, value, fmt.Errorf("%w: required", domain.ErrInvalidIdentifier))
	}
	if len(value) > MaxIdentifierLen {
		return domain.NewValidationError(field, value,
			fmt.Errorf("%w: longer than %d characters", domain.ErrInvalidIdentifier, MaxIdentifierLen))
	}
	if !identifierPattern.MatchString(value) {
		return domain.NewValidationError(field, value,
			fmt.Errorf("%w: must match %s", domain.ErrInvalidIdentifier, identifierPattern))
	}
	return nil
}

// PathSpec identifies the directory a write belongs in.
type PathSpec struct {
	Entity   string
	Category domain.Category
	Source   string
	// Name is the workflow for classified documents and the context
	// (channel, mailbox, ...) for streams.
	Name string
	Year int
}

// Validate checks every identifier in the spec.
func (p PathSpec) Validate() error {
	if err := ValidateIdentifier("entity", p.Entity); err != nil {
		return err
	}
	switch p.Category {
	case domain.CategoryClassified:
		if err := ValidateIdentifier("workflow", p.Name); err != nil {
			return err
		}
		if p.Source != "" {
			if err := ValidateIdentifier("source", p.Source); err != nil {
				return err
			}
		}
	case domain.CategoryStream:
		if err := ValidateIdentifier("source", p.Source); err != nil {
			return err
		}
		if err := ValidateIdentifier("context", p.Name); err != nil {
			return err
		}
	default:
		return domain.NewValidationError("category", string(p.Category), domain.ErrInvalidInput)
	}
	if p.Year < 1 || p.Year > 9999 {
		return domain.NewValidationError("year", strconv.Itoa(p.Year), domain.ErrInvalidInput)
	}
	return nil
}

// relDir is the PathSpec's directory relative to the entity root.
func (p PathSpec) relDir() string {
	year := fmt.Sprintf("%04d", p.Year)
	if p.Category == domain.CategoryClassified {
		return filepath.Join(WorkflowsDir, p.Name, year)
	}
	return filepath.Join(StreamsDir, p.Source, p.Name, year)
}

// Resolver resolves paths under a repository root.
type Resolver struct {
	Root string
}

// NewResolver returns a resolver for root, made absolute.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, domain.NewValidationError("root", root, domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}
	return &Resolver{Root: filepath.Clean(abs)}, nil
}

// EntitiesRoot returns {root}/entities.
func (r *Resolver) EntitiesRoot() string {
	return filepath.Join(r.Root, EntitiesDir)
}

// IndexDir returns {root}/indexes.
func (r *Resolver) IndexDir() string {
	return filepath.Join(r.Root, IndexesDir)
}

// EntityRoot returns {root}/entities/{entity}.
func (r *Resolver) EntityRoot(entity string) (string, error) {
	if err := ValidateIdentifier("entity", entity); err != nil {
		return "", err
	}
	return r.contained(filepath.Join(r.EntitiesRoot(), entity))
}

// DirFor returns the absolute content directory for spec.
func (r *Resolver) DirFor(spec PathSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return r.contained(filepath.Join(r.EntitiesRoot(), spec.Entity, spec.relDir()))
}

// MetadataDirFor returns the absolute sidecar directory for spec.
func (r *Resolver) MetadataDirFor(spec PathSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return r.contained(filepath.Join(r.EntitiesRoot(), spec.Entity, MetadataDir, spec.relDir()))
}

// SidecarPath returns the sidecar path for a content path relative to
// the entity root.
func (r *Resolver) SidecarPath(entity, contentRel string) (string, error) {
	root, err := r.EntityRoot(entity)
	if err != nil {
		return "", err
	}
	if err := CheckRelative("content.path", contentRel); err != nil {
		return "", err
	}
	return r.contained(filepath.Join(root, MetadataDir, filepath.FromSlash(contentRel)+SidecarExt))
}

// ContentPath resolves a content path relative to the entity root.
func (r *Resolver) ContentPath(entity, contentRel string) (string, error) {
	root, err := r.EntityRoot(entity)
	if err != nil {
		return "", err
	}
	if err := CheckRelative("content.path", contentRel); err != nil {
		return "", err
	}
	return r.contained(filepath.Join(root, filepath.FromSlash(contentRel)))
}

// RelToEntity returns abs relative to the entity root, slash separated.
func (r *Resolver) RelToEntity(entity, abs string) (string, error) {
	root, err := r.EntityRoot(entity)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || escapes(rel) {
		return "", domain.NewValidationError("path", abs, domain.ErrPathTraversal)
	}
	return filepath.ToSlash(rel), nil
}

// RelToRoot returns abs relative to the repository root, slash separated.
func (r *Resolver) RelToRoot(abs string) (string, error) {
	rel, err := filepath.Rel(r.Root, abs)
	if err != nil || escapes(rel) {
		return "", domain.NewValidationError("path", abs, domain.ErrPathTraversal)
	}
	return filepath.ToSlash(rel), nil
}

// Contains reports whether path lies inside the repository root.
func (r *Resolver) Contains(path string) bool {
	_, err := r.contained(path)
	return err == nil
}

func (r *Resolver) contained(path string) (string, error) {
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(r.Root, clean)
	if err != nil || escapes(rel) {
		return "", domain.NewValidationError("path", path, domain.ErrPathTraversal)
	}
	return clean, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

// CheckRelative rejects absolute paths and paths with ".." segments.
func CheckRelative(field, p string) error {
	if p == "" {
		return domain.NewValidationError(field, p, domain.ErrInvalidInput)
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return domain.NewValidationError(field, p, domain.ErrPathTraversal)
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return domain.NewValidationError(field, p, domain.ErrPathTraversal)
		}
	}
	return nil
}
