// Package report renders verification outcomes for people and for machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
	"github.com/libreseed/pkgverify/pkg/storage"
	"github.com/libreseed/pkgverify/pkg/validation"
)

// Status of a verified package.
type Status string

const (
	StatusOK           Status = "ok"
	StatusCorrupted    Status = "corrupted"
	StatusUnverifiable Status = "unverifiable"
	StatusError        Status = "error"
)

// Supported output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Failure is one corrupted entry.
type Failure struct {
	Path     string `json:"path" yaml:"path"`
	Kind     string `json:"kind" yaml:"kind"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual   string `json:"actual,omitempty" yaml:"actual,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

// Report is the outcome of verifying a single package directory.
type Report struct {
	RunID          string         `json:"run_id" yaml:"run_id"`
	PackageDir     string         `json:"package_dir" yaml:"package_dir"`
	Package        string         `json:"package,omitempty" yaml:"package,omitempty"`
	ManifestSource string         `json:"manifest_source,omitempty" yaml:"manifest_source,omitempty"`
	Entries        int            `json:"entries" yaml:"entries"`
	EntriesByType  map[string]int `json:"entries_by_type,omitempty" yaml:"entries_by_type,omitempty"`
	DeclaredBytes  uint64         `json:"declared_bytes" yaml:"declared_bytes"`
	Status         Status         `json:"status" yaml:"status"`
	Error          string         `json:"error,omitempty" yaml:"error,omitempty"`
	Failures       []Failure      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Duration       string         `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// New builds a report from the outcome of validation.Verify. result may be nil
// when the package could not be resolved.
func New(runID, packageDir string, result *validation.Result, err error) *Report {
	r := &Report{
		RunID:      runID,
		PackageDir: packageDir,
		Status:     StatusOK,
	}

	if result != nil {
		if result.Index != nil {
			r.Package = result.Index.FullName()
		}
		r.ManifestSource = string(result.Source)
		if result.Paths != nil {
			r.Entries = len(result.Paths.Paths)
			r.DeclaredBytes = result.Paths.TotalSize()
			r.EntriesByType = make(map[string]int)
			for pathType, n := range result.Paths.CountByType() {
				r.EntriesByType[string(pathType)] = n
			}
		}
		if result.Duration > 0 {
			r.Duration = result.Duration.Round(time.Microsecond).String()
		}
	}

	if err == nil {
		return r
	}

	r.Error = err.Error()
	switch {
	case validation.IsCorruption(err):
		r.Status = StatusCorrupted
		for _, entryErr := range validation.Entries(err) {
			r.Failures = append(r.Failures, newFailure(entryErr))
		}
	case validation.IsResolutionError(err):
		r.Status = StatusUnverifiable
	default:
		r.Status = StatusError
	}
	return r
}

func newFailure(entryErr *validation.EntryError) Failure {
	return Failure{
		Path:     entryErr.RelativePath,
		Kind:     Kind(entryErr),
		Expected: entryErr.Expected,
		Actual:   entryErr.Actual,
		Message:  entryErr.Error(),
	}
}

// Kind returns a stable machine readable name for the cause of an entry error.
func Kind(err error) string {
	kinds := []struct {
		target error
		name   string
	}{
		{validation.ErrNotFound, "not_found"},
		{validation.ErrGetMetadataFailed, "metadata_failed"},
		{validation.ErrExpectedSymlink, "expected_symlink"},
		{validation.ErrExpectedDirectory, "expected_directory"},
		{validation.ErrExpectedRegularFile, "expected_regular_file"},
		{validation.ErrIncorrectSize, "incorrect_size"},
		{validation.ErrHashMismatch, "hash_mismatch"},
		{validation.ErrIO, "io_error"},
		{packagetypes.ErrUnknownPathType, "unknown_path_type"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.name
		}
	}
	return "unknown"
}

// Failed reports whether any report is not StatusOK.
func Failed(reports []*Report) bool {
	for _, r := range reports {
		if r.Status != StatusOK {
			return true
		}
	}
	return false
}

// Encode writes reports to w in the given format. json and yaml produce a
// single document holding every report.
func Encode(w io.Writer, format string, reports []*Report) error {
	switch format {
	case FormatText:
		return encodeText(w, reports)
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(document{Reports: reports}); err != nil {
			return fmt.Errorf("failed to encode JSON report: %w", err)
		}
		return nil
	case FormatYAML:
		data, err := storage.MarshalYAML(document{Reports: reports})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("unknown report format %q, must be one of: text, json, yaml", format)
}

// WriteFile encodes reports and replaces path atomically.
func WriteFile(path, format string, reports []*Report) error {
	var buf strings.Builder
	if err := Encode(&buf, format, reports); err != nil {
		return err
	}
	if err := storage.AtomicWriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report %q: %w", path, err)
	}
	return nil
}

type document struct {
	Reports []*Report `json:"reports" yaml:"reports"`
}

func encodeText(w io.Writer, reports []*Report) error {
	var b strings.Builder
	for _, r := range reports {
		name := r.Package
		if name == "" {
			name = r.PackageDir
		}

		switch r.Status {
		case StatusOK:
			fmt.Fprintf(&b, "OK    %s: %d entries, %s declared (%s", name, r.Entries, humanize.Bytes(r.DeclaredBytes), r.ManifestSource)
			if r.Duration != "" {
				fmt.Fprintf(&b, ", %s", r.Duration)
			}
			b.WriteString(")\n")
		case StatusCorrupted:
			fmt.Fprintf(&b, "FAIL  %s: %d of %d entries corrupted\n", name, len(r.Failures), r.Entries)
			for _, f := range r.Failures {
				fmt.Fprintf(&b, "      %s\n", f.Message)
			}
		default:
			fmt.Fprintf(&b, "ERROR %s: %s\n", name, r.Error)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
