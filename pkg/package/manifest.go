// Package packagetypes provides the data structures describing the contents of an
// extracted package directory and the loaders that read them from disk.
package packagetypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
)

// Manifest model errors
var (
	ErrInvalidPath     = errors.New("invalid path")
	ErrDuplicatePath   = errors.New("duplicate path")
	ErrUnknownPathType = errors.New("unknown path type")
)

// PathType determines which validation rules apply to a manifest entry.
type PathType string

const (
	// PathTypeHardLink is a regular file (stored as a hard link in the package cache).
	PathTypeHardLink PathType = "hardlink"

	// PathTypeSoftLink is a symbolic link.
	PathTypeSoftLink PathType = "softlink"

	// PathTypeDirectory is an (empty) directory declared explicitly by the package.
	PathTypeDirectory PathType = "directory"
)

// Valid reports whether p is one of the known path types.
func (p PathType) Valid() bool {
	switch p {
	case PathTypeHardLink, PathTypeSoftLink, PathTypeDirectory:
		return true
	}
	return false
}

// UnmarshalJSON rejects path types this package does not know how to validate.
func (p *PathType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !PathType(s).Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPathType, s)
	}
	*p = PathType(s)
	return nil
}

// FileMode describes how the installation prefix placeholder is embedded in a file.
type FileMode string

const (
	FileModeText   FileMode = "text"
	FileModeBinary FileMode = "binary"
)

// PathsJSON is the manifest of a package: every file, link and directory it declares.
//
// Location: info/paths.json inside the extracted package.
type PathsJSON struct {
	// Paths lists the entries in declaration order.
	Paths []PathsEntry `json:"paths" yaml:"paths"`

	// PathsVersion is the version of the paths.json format (currently 1).
	PathsVersion int `json:"paths_version" yaml:"paths_version"`
}

// PathsEntry describes a single filesystem object declared by a package.
type PathsEntry struct {
	// RelativePath is the slash separated path relative to the package root.
	RelativePath string `json:"_path" yaml:"path"`

	// PathType determines which checks are applied to the object on disk.
	PathType PathType `json:"path_type" yaml:"path_type"`

	// FileMode is set when the file contains a prefix placeholder.
	FileMode FileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`

	// PrefixPlaceholder is the build prefix embedded in the file, if any.
	PrefixPlaceholder string `json:"prefix_placeholder,omitempty" yaml:"prefix_placeholder,omitempty"`

	// NoLink indicates the file must be copied rather than linked on install.
	NoLink bool `json:"no_link,omitempty" yaml:"no_link,omitempty"`

	// SHA256 is the digest of the file content. Only set for hardlink entries.
	SHA256 *Digest `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	// SizeInBytes is the size of the file. Only set for hardlink entries.
	SizeInBytes *uint64 `json:"size_in_bytes,omitempty" yaml:"size_in_bytes,omitempty"`
}

// FilePath returns the location of the entry inside packageDir.
func (e *PathsEntry) FilePath(packageDir string) string {
	return filepath.Join(packageDir, filepath.FromSlash(e.RelativePath))
}

// Validate checks the entry on its own. Uniqueness is checked by PathsJSON.Validate.
func (e *PathsEntry) Validate() error {
	if e.RelativePath == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidPath)
	}
	if !filepath.IsLocal(filepath.FromSlash(e.RelativePath)) {
		return fmt.Errorf("%w: %q is not a local relative path", ErrInvalidPath, e.RelativePath)
	}
	if !e.PathType.Valid() {
		return fmt.Errorf("%w: %q for %s", ErrUnknownPathType, e.PathType, e.RelativePath)
	}
	if e.SHA256 != nil {
		if err := e.SHA256.Validate(); err != nil {
			return fmt.Errorf("sha256 of %s: %w", e.RelativePath, err)
		}
	}
	return nil
}

// Validate checks that every entry is valid and that no path is declared twice.
func (p *PathsJSON) Validate() error {
	seen := make(map[string]struct{}, len(p.Paths))
	for i := range p.Paths {
		entry := &p.Paths[i]
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("paths[%d]: %w", i, err)
		}
		key := path.Clean(entry.RelativePath)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("paths[%d]: %w: %s", i, ErrDuplicatePath, entry.RelativePath)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// normalize drops integrity fields from entries that are validated structurally only.
func (p *PathsJSON) normalize() {
	for i := range p.Paths {
		if p.Paths[i].PathType != PathTypeHardLink {
			p.Paths[i].SHA256 = nil
			p.Paths[i].SizeInBytes = nil
		}
	}
}

// CountByType returns the number of entries of each path type.
func (p *PathsJSON) CountByType() map[PathType]int {
	counts := make(map[PathType]int, 3)
	for _, entry := range p.Paths {
		counts[entry.PathType]++
	}
	return counts
}

// TotalSize returns the summed declared size of all hardlink entries that carry one.
func (p *PathsJSON) TotalSize() uint64 {
	var total uint64
	for _, entry := range p.Paths {
		if entry.SizeInBytes != nil {
			total += *entry.SizeInBytes
		}
	}
	return total
}
