// Package storage provides filesystem primitives used by the verifier: streaming
// content digests, throttled reads and atomic writes for output files.
//
// Nothing in this package writes inside a package directory under verification;
// AtomicWriteFile is only used for reports requested by the caller.
package storage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"golang.org/x/time/rate"
)

// AtomicWriteFile writes data to a file atomically using the temp-file + rename pattern.
// Either the complete file is written or the original file (if any) stays unchanged.
//
// Parameters:
//   - path: destination file path
//   - data: bytes to write
//   - perm: file permissions (e.g., 0644)
//
// Returns error if any step fails.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := EnsureDir(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	// Temp file must live in the target directory for the rename to be atomic
	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	// The temp file is now the target file
	tmpFile = nil
	return nil
}

// EnsureDir creates a directory and all necessary parent directories.
// If the directory already exists, it returns nil (no error).
func EnsureDir(path string, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// ComputeFileDigest streams the content of a file through SHA-256.
//
// Parameters:
//   - ctx: used only while waiting on limiter; a cancelled ctx aborts the read
//   - path: file path to hash
//   - limiter: optional read throttle, nil for unlimited
//
// Returns the sha256 digest, or an error wrapping the underlying I/O failure.
func ComputeFileDigest(ctx context.Context, path string, limiter *rate.Limiter) (digest.Digest, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = bufio.NewReader(file)
	if limiter != nil {
		reader = NewRateLimitedReader(ctx, reader, limiter)
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return "", fmt.Errorf("failed to compute hash: %w", err)
	}

	return digest.NewDigest(digest.SHA256, hash), nil
}
