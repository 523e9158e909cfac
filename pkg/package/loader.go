package packagetypes

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Well-known metadata locations relative to the package root.
const (
	PathsJSONPath = "info/paths.json"
	IndexJSONPath = "info/index.json"
	AboutJSONPath = "info/about.json"
	FilesPath     = "info/files"
	HasPrefixPath = "info/has_prefix"
	NoLinkPath    = "info/no_link"

	// DefaultPlaceholder is the prefix placeholder assumed by has_prefix lines
	// that only name a path.
	DefaultPlaceholder = "/opt/anaconda1anaconda2anaconda3"
)

// Manifest resolution errors
var (
	ErrMetadataMissing     = errors.New("neither a 'paths.json' or a deprecated 'files' file was found")
	ErrReadPathsJSON       = errors.New("failed to read 'paths.json' file")
	ErrReadDeprecatedPaths = errors.New("failed to read validation data from deprecated files")
)

// ManifestSource tells which metadata a PathsJSON was built from.
type ManifestSource string

const (
	SourcePathsJSON  ManifestSource = "paths.json"
	SourceDeprecated ManifestSource = "deprecated"
)

// LoadPathsJSONFromPackageDirectory reads info/paths.json from packageDir.
// A missing file is reported with an error wrapping fs.ErrNotExist.
func LoadPathsJSONFromPackageDirectory(packageDir string) (*PathsJSON, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, filepath.FromSlash(PathsJSONPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", PathsJSONPath, err)
	}
	return LoadPathsJSONFromBytes(data)
}

// LoadPathsJSONFromBytes parses and validates a paths.json document.
func LoadPathsJSONFromBytes(data []byte) (*PathsJSON, error) {
	var paths PathsJSON
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", PathsJSONPath, err)
	}
	paths.normalize()
	if err := paths.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", PathsJSONPath, err)
	}
	return &paths, nil
}

// LoadPathsJSONFromDeprecatedPackageDirectory reconstructs a PathsJSON from the
// info/files list of old packages. info/has_prefix and info/no_link are optional.
// Every reconstructed entry is a hardlink without size or digest, since the
// deprecated format records neither.
func LoadPathsJSONFromDeprecatedPackageDirectory(packageDir string) (*PathsJSON, error) {
	files, err := readLines(filepath.Join(packageDir, filepath.FromSlash(FilesPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", FilesPath, err)
	}

	prefixed, err := readHasPrefix(filepath.Join(packageDir, filepath.FromSlash(HasPrefixPath)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", HasPrefixPath, err)
	}

	noLink := make(map[string]bool)
	noLinkLines, err := readLines(filepath.Join(packageDir, filepath.FromSlash(NoLinkPath)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", NoLinkPath, err)
	}
	for _, line := range noLinkLines {
		noLink[line] = true
	}

	paths := &PathsJSON{
		Paths:        make([]PathsEntry, 0, len(files)),
		PathsVersion: 1,
	}
	for _, file := range files {
		entry := PathsEntry{
			RelativePath: file,
			PathType:     PathTypeHardLink,
			NoLink:       noLink[file],
		}
		if p, ok := prefixed[file]; ok {
			entry.PrefixPlaceholder = p.placeholder
			entry.FileMode = p.mode
		}
		paths.Paths = append(paths.Paths, entry)
	}

	if err := paths.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FilesPath, err)
	}
	return paths, nil
}

// ResolvePathsJSON returns the authoritative manifest of packageDir. It prefers
// info/paths.json and falls back to the deprecated files only when paths.json is
// absent. A package that has neither yields ErrMetadataMissing; damaged metadata
// yields ErrReadPathsJSON or ErrReadDeprecatedPaths.
//
// A missing paths.json may mean an old package or an interrupted extraction; the
// returned ManifestSource lets callers tell which path was taken.
func ResolvePathsJSON(packageDir string) (*PathsJSON, ManifestSource, error) {
	paths, err := LoadPathsJSONFromPackageDirectory(packageDir)
	if err == nil {
		return paths, SourcePathsJSON, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %w", ErrReadPathsJSON, err)
	}

	paths, err = LoadPathsJSONFromDeprecatedPackageDirectory(packageDir)
	if err == nil {
		return paths, SourceDeprecated, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrMetadataMissing
	}
	return nil, "", fmt.Errorf("%w: %w", ErrReadDeprecatedPaths, err)
}

// LoadIndexJSONFromPackageDirectory reads and validates info/index.json.
func LoadIndexJSONFromPackageDirectory(packageDir string) (*IndexJSON, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, filepath.FromSlash(IndexJSONPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IndexJSONPath, err)
	}

	var index IndexJSON
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", IndexJSONPath, err)
	}
	if err := index.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", IndexJSONPath, err)
	}
	return &index, nil
}

// LoadAboutJSONFromPackageDirectory reads info/about.json.
func LoadAboutJSONFromPackageDirectory(packageDir string) (*AboutJSON, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, filepath.FromSlash(AboutJSONPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", AboutJSONPath, err)
	}

	var about AboutJSON
	if err := json.Unmarshal(data, &about); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", AboutJSONPath, err)
	}
	return &about, nil
}

type prefixRecord struct {
	placeholder string
	mode        FileMode
}

// readHasPrefix parses info/has_prefix. Each line is either "path" or
// "placeholder mode path"; tokens may be double quoted.
func readHasPrefix(path string) (map[string]prefixRecord, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	records := make(map[string]prefixRecord, len(lines))
	for n, line := range lines {
		fields := splitQuoted(line)
		switch len(fields) {
		case 1:
			records[fields[0]] = prefixRecord{placeholder: DefaultPlaceholder, mode: FileModeText}
		case 3:
			mode := FileMode(fields[1])
			if mode != FileModeText && mode != FileModeBinary {
				return nil, fmt.Errorf("line %d: unknown file mode %q", n+1, fields[1])
			}
			records[fields[2]] = prefixRecord{placeholder: fields[0], mode: mode}
		default:
			return nil, fmt.Errorf("line %d: expected 1 or 3 fields, got %d", n+1, len(fields))
		}
	}
	return records, nil
}

// readLines returns the non-empty lines of a file with surrounding whitespace removed.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// splitQuoted splits a line on whitespace, keeping double quoted tokens intact.
func splitQuoted(line string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t'):
			if started {
				fields = append(fields, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if started {
		fields = append(fields, current.String())
	}
	return fields
}
