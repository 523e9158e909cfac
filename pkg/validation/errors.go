package validation

import (
	"errors"
	"fmt"
	"strings"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
)

// Package level errors. They tell "this is not a package that can be verified"
// apart from "this package is damaged" (ErrCorruptedEntry).
var (
	ErrMetadataMissing     = packagetypes.ErrMetadataMissing
	ErrReadPathsJSON       = packagetypes.ErrReadPathsJSON
	ErrReadDeprecatedPaths = packagetypes.ErrReadDeprecatedPaths
	ErrReadIndexJSON       = errors.New("failed to read 'index.json'")
	ErrCorruptedEntry      = errors.New("corrupted entry")
)

// Entry level errors
var (
	ErrGetMetadataFailed   = errors.New("failed to retrieve file metadata")
	ErrNotFound            = errors.New("the file does not exist")
	ErrExpectedSymlink     = errors.New("expected a symbolic link")
	ErrExpectedDirectory   = errors.New("expected a directory")
	ErrExpectedRegularFile = errors.New("expected a regular file")
	ErrIncorrectSize       = errors.New("incorrect size")
	ErrIO                  = errors.New("an io error occurred")
	ErrHashMismatch        = errors.New("sha256 hash mismatch")
)

// EntryError reports that the object at RelativePath does not match its manifest entry.
// Cause is one of the entry level Err* values; Err holds the underlying I/O error,
// if any.
type EntryError struct {
	RelativePath string
	Cause        error

	// Expected and Actual are set for size (decimal bytes) and hash (hex) mismatches
	// and for wrong kinds (the kind found on disk).
	Expected string
	Actual   string

	Err error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	var msg string
	switch {
	case errors.Is(e.Cause, ErrIncorrectSize):
		msg = fmt.Sprintf("incorrect size, expected %s but file on disk is %s", e.Expected, e.Actual)
	case errors.Is(e.Cause, ErrHashMismatch):
		msg = fmt.Sprintf("sha256 hash mismatch, expected '%s' but file on disk is '%s'", e.Expected, e.Actual)
	case e.Actual != "":
		msg = fmt.Sprintf("%s, found %s", e.Cause, e.Actual)
	default:
		msg = e.Cause.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.RelativePath, msg)
}

// Unwrap exposes both the cause and the underlying error to errors.Is and errors.As.
func (e *EntryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Err}
}

// EntryErrors is the result of a collect-all validation: every failing entry in
// declaration order.
type EntryErrors []*EntryError

// Error implements the error interface.
func (e EntryErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d entries are corrupted: %s", len(e), strings.Join(msgs, "; "))
}

// Unwrap exposes every entry error.
func (e EntryErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

// PackageValidationError is returned by ValidatePackageDirectory. Cause is one of
// the package level Err* values.
type PackageValidationError struct {
	PackageDir string
	Cause      error
	Err        error
}

// Error implements the error interface.
func (e *PackageValidationError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.PackageDir, e.Cause)
	case errors.Is(e.Err, e.Cause):
		return fmt.Sprintf("%s: %s", e.PackageDir, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.PackageDir, e.Cause, e.Err)
	}
}

// Unwrap exposes the cause and the underlying error.
func (e *PackageValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Err}
}

// Entries returns the corrupted entries carried by the error, if any.
func (e *PackageValidationError) Entries() []*EntryError {
	return Entries(e.Err)
}

// Entries extracts the entry errors from an error returned by this package.
func Entries(err error) []*EntryError {
	var many EntryErrors
	if errors.As(err, &many) {
		return many
	}
	var one *EntryError
	if errors.As(err, &one) {
		return []*EntryError{one}
	}
	return nil
}

// IsResolutionError reports whether err means the package could not be verified
// at all (identity or manifest missing or unreadable).
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrReadIndexJSON) ||
		errors.Is(err, ErrMetadataMissing) ||
		errors.Is(err, ErrReadPathsJSON) ||
		errors.Is(err, ErrReadDeprecatedPaths)
}

// IsCorruption reports whether err means at least one entry did not match.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruptedEntry) || len(Entries(err)) > 0
}
