package validation

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"go.uber.org/zap"

	packagetypes "github.com/libreseed/pkgverify/pkg/package"
	"github.com/libreseed/pkgverify/pkg/storage"
)

// ValidateEntry determines whether the object at entry's path inside packageDir
// matches the entry. It returns nil or an *EntryError.
func ValidateEntry(ctx context.Context, packageDir string, entry *packagetypes.PathsEntry, opts ...Option) error {
	if entryErr := validateEntry(ctx, packageDir, entry, newOptions(opts)); entryErr != nil {
		return entryErr
	}
	return nil
}

func validateEntry(ctx context.Context, packageDir string, entry *packagetypes.PathsEntry, o *options) *EntryError {
	path := entry.FilePath(packageDir)

	// Lstat so that a symlink standing in for another kind is seen as a symlink
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &EntryError{RelativePath: entry.RelativePath, Cause: ErrNotFound}
		}
		return &EntryError{RelativePath: entry.RelativePath, Cause: ErrGetMetadataFailed, Err: err}
	}

	var entryErr *EntryError
	switch entry.PathType {
	case packagetypes.PathTypeHardLink:
		entryErr = validateHardLinkEntry(ctx, path, entry, info, o)
	case packagetypes.PathTypeSoftLink:
		entryErr = validateSoftLinkEntry(entry, info)
	case packagetypes.PathTypeDirectory:
		entryErr = validateDirectoryEntry(entry, info)
	default:
		entryErr = &EntryError{RelativePath: entry.RelativePath, Cause: packagetypes.ErrUnknownPathType, Actual: string(entry.PathType)}
	}

	if entryErr == nil {
		o.logger.Debug("entry verified",
			zap.String("path", entry.RelativePath),
			zap.String("path_type", string(entry.PathType)),
		)
	}
	return entryErr
}

// validateHardLinkEntry checks the size and digest of a regular file, each only
// when the entry declares it.
func validateHardLinkEntry(ctx context.Context, path string, entry *packagetypes.PathsEntry, info fs.FileInfo, o *options) *EntryError {
	if o.strict && !info.Mode().IsRegular() {
		return &EntryError{
			RelativePath: entry.RelativePath,
			Cause:        ErrExpectedRegularFile,
			Actual:       describeMode(info.Mode()),
		}
	}

	if entry.SizeInBytes != nil {
		actual := uint64(info.Size())
		if actual != *entry.SizeInBytes {
			return &EntryError{
				RelativePath: entry.RelativePath,
				Cause:        ErrIncorrectSize,
				Expected:     strconv.FormatUint(*entry.SizeInBytes, 10),
				Actual:       strconv.FormatUint(actual, 10),
			}
		}
	}

	if entry.SHA256 != nil {
		// An in-flight hash is never interrupted by cancellation
		computed, err := storage.ComputeFileDigest(context.WithoutCancel(ctx), path, o.limiter)
		if err != nil {
			return &EntryError{RelativePath: entry.RelativePath, Cause: ErrIO, Err: err}
		}
		actual := packagetypes.NewDigest(computed)
		if !actual.Equal(*entry.SHA256) {
			return &EntryError{
				RelativePath: entry.RelativePath,
				Cause:        ErrHashMismatch,
				Expected:     entry.SHA256.Hex(),
				Actual:       actual.Hex(),
			}
		}
	}

	return nil
}

// validateSoftLinkEntry only checks that the object is a symlink.
// TODO: compare link targets by resolved location; "../a" and "b/../../a" differ
// byte-wise but point at the same file.
func validateSoftLinkEntry(entry *packagetypes.PathsEntry, info fs.FileInfo) *EntryError {
	if info.Mode()&fs.ModeSymlink == 0 {
		return &EntryError{
			RelativePath: entry.RelativePath,
			Cause:        ErrExpectedSymlink,
			Actual:       describeMode(info.Mode()),
		}
	}
	return nil
}

func validateDirectoryEntry(entry *packagetypes.PathsEntry, info fs.FileInfo) *EntryError {
	if !info.IsDir() {
		return &EntryError{
			RelativePath: entry.RelativePath,
			Cause:        ErrExpectedDirectory,
			Actual:       describeMode(info.Mode()),
		}
	}
	return nil
}

func describeMode(mode fs.FileMode) string {
	switch {
	case mode.IsRegular():
		return "a regular file"
	case mode.IsDir():
		return "a directory"
	case mode&fs.ModeSymlink != 0:
		return "a symbolic link"
	case mode&fs.ModeNamedPipe != 0:
		return "a named pipe"
	case mode&fs.ModeSocket != 0:
		return "a socket"
	case mode&fs.ModeDevice != 0:
		return "a device"
	}
	return "an unknown file type"
}
