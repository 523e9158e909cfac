// Package validation verifies that an extracted package directory matches the
// files its manifest declares.
//
// Almost all packages contain info/paths.json describing every file, link and
// directory. Very old packages only carry the deprecated info/files list, from
// which a manifest without sizes or digests is reconstructed. Validation is
// read-only: discrepancies are reported, never repaired.
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
)

// Result describes a verified (or partially verified) package.
type Result struct {
	PackageDir string
	Index      *packagetypes.IndexJSON
	Paths      *packagetypes.PathsJSON
	Source     packagetypes.ManifestSource
	Duration   time.Duration
}

// ValidatePackageDirectory determines whether the files in packageDir match what
// its manifest declares. On success the package identity and the manifest are
// returned. Failures are *PackageValidationError values.
func ValidatePackageDirectory(ctx context.Context, packageDir string, opts ...Option) (*packagetypes.IndexJSON, *packagetypes.PathsJSON, error) {
	result, err := Verify(ctx, packageDir, opts...)
	if err != nil {
		return nil, nil, err
	}
	return result.Index, result.Paths, nil
}

// Verify is ValidatePackageDirectory returning a Result. When entries are
// corrupted the Result is returned together with the error so callers can still
// report which package was checked; on resolution failures Result is nil.
func Verify(ctx context.Context, packageDir string, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	logger := o.logger.With(zap.String("package_dir", packageDir))
	start := time.Now()

	index, err := packagetypes.LoadIndexJSONFromPackageDirectory(packageDir)
	if err != nil {
		logger.Warn("package identity unreadable", zap.Error(err))
		return nil, &PackageValidationError{PackageDir: packageDir, Cause: ErrReadIndexJSON, Err: err}
	}

	paths, source, err := packagetypes.ResolvePathsJSON(packageDir)
	if err != nil {
		logger.Warn("package manifest unreadable", zap.Error(err))
		return nil, &PackageValidationError{PackageDir: packageDir, Cause: resolutionCause(err), Err: err}
	}
	if source == packagetypes.SourceDeprecated {
		logger.Info("paths.json missing, using deprecated file list", zap.Int("entries", len(paths.Paths)))
	}

	result := &Result{
		PackageDir: packageDir,
		Index:      index,
		Paths:      paths,
		Source:     source,
	}

	err = validateEntries(ctx, packageDir, paths, o, logger)
	result.Duration = time.Since(start)
	if err != nil {
		if len(Entries(err)) == 0 {
			// cancellation
			return result, err
		}
		return result, &PackageValidationError{PackageDir: packageDir, Cause: ErrCorruptedEntry, Err: err}
	}

	logger.Info("package verified",
		zap.String("package", index.FullName()),
		zap.String("source", string(source)),
		zap.Int("entries", len(paths.Paths)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// ValidatePackageDirectoryFromPaths checks every entry of paths against
// packageDir without reading any metadata from the directory. It returns nil, an
// *EntryError (StopOnFirst) or EntryErrors (CollectAll). A cancelled ctx stops
// dispatching further entries; the returned error then wraps the context error
// together with any entry errors found before the cancellation.
func ValidatePackageDirectoryFromPaths(ctx context.Context, packageDir string, paths *packagetypes.PathsJSON, opts ...Option) error {
	o := newOptions(opts)
	return validateEntries(ctx, packageDir, paths, o, o.logger.With(zap.String("package_dir", packageDir)))
}

func validateEntries(ctx context.Context, packageDir string, paths *packagetypes.PathsJSON, o *options, logger *zap.Logger) error {
	if o.workers > 1 && len(paths.Paths) > 1 {
		return validateEntriesParallel(ctx, packageDir, paths, o, logger)
	}

	var failures EntryErrors
	for i := range paths.Paths {
		if err := ctx.Err(); err != nil {
			return cancelled(failures, err)
		}
		entryErr := validateEntry(ctx, packageDir, &paths.Paths[i], o)
		if entryErr == nil {
			continue
		}
		logger.Warn("entry corrupted", zap.String("path", entryErr.RelativePath), zap.Error(entryErr))
		if o.mode == StopOnFirst {
			return entryErr
		}
		failures = append(failures, entryErr)
	}
	if err := ctx.Err(); err != nil {
		return cancelled(failures, err)
	}
	if len(failures) > 0 {
		return failures
	}
	return nil
}

// validateEntriesParallel dispatches entries to o.workers goroutines. Results are
// stored by entry index so the outcome is reported in declaration order.
func validateEntriesParallel(ctx context.Context, packageDir string, paths *packagetypes.PathsJSON, o *options, logger *zap.Logger) error {
	results := make([]*EntryError, len(paths.Paths))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.workers)
	for i := range paths.Paths {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			entryErr := validateEntry(groupCtx, packageDir, &paths.Paths[i], o)
			if entryErr == nil {
				return nil
			}
			logger.Warn("entry corrupted", zap.String("path", entryErr.RelativePath), zap.Error(entryErr))
			results[i] = entryErr
			if o.mode == StopOnFirst {
				return entryErr
			}
			return nil
		})
	}
	_ = group.Wait()

	var failures EntryErrors
	for _, entryErr := range results {
		if entryErr != nil {
			failures = append(failures, entryErr)
		}
	}
	if o.mode == StopOnFirst && len(failures) > 0 {
		// Later failures were found by entries already in flight
		failures = failures[:1]
	}
	if err := ctx.Err(); err != nil {
		return cancelled(failures, err)
	}
	if len(failures) > 0 {
		if o.mode == StopOnFirst {
			return failures[0]
		}
		return failures
	}
	return nil
}

// cancelled reports a run interrupted by ctx. Failures found before the
// interruption are kept next to the context error, so Entries still returns them
// and errors.Is(err, context.Canceled) tells the list is incomplete.
func cancelled(failures EntryErrors, ctxErr error) error {
	err := fmt.Errorf("validation cancelled: %w", ctxErr)
	if len(failures) == 0 {
		return err
	}
	return errors.Join(failures, err)
}

func resolutionCause(err error) error {
	for _, cause := range []error{ErrMetadataMissing, ErrReadPathsJSON, ErrReadDeprecatedPaths} {
		if errors.Is(err, cause) {
			return cause
		}
	}
	return ErrReadPathsJSON
}
