// Package artifact handles local dump files: scratch directory, verification,
// checksums and secure removal.
package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"golang.org/x/crypto/blake2b"
)

const scratchDirMode = 0o700

// PrepareDir creates the scratch directory and restricts it to the running user.
func PrepareDir(dir string) error {
	if err := os.MkdirAll(dir, scratchDirMode); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	// MkdirAll leaves an existing directory's mode untouched.
	if err := os.Chmod(dir, scratchDirMode); err != nil {
		return fmt.Errorf("failed to restrict scratch directory: %w", err)
	}
	return nil
}

// Verify checks that the artifact exists and is non-empty, returning its size.
func Verify(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, backuperr.New(backuperr.KindEmptyArtifact, "artifact missing", err)
	}
	if info.IsDir() {
		return 0, backuperr.New(backuperr.KindEmptyArtifact, "artifact is a directory", nil)
	}
	if info.Size() == 0 {
		return 0, backuperr.New(backuperr.KindEmptyArtifact, "artifact is empty", nil)
	}
	return info.Size(), nil
}

// Checksum returns the hex-encoded BLAKE2b-256 digest of the file.
func Checksum(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is controlled by caller
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create hash: %w", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// RemoveResult describes how an artifact was removed.
type RemoveResult struct {
	Overwritten bool
	Removed     bool
	Error       error
}

// SecureRemove overwrites the file with zeros before deleting it. If the
// overwrite fails the file is still deleted. A missing file is not an error.
func SecureRemove(path string) RemoveResult {
	result := RemoveResult{}

	if err := overwrite(path); err == nil {
		result.Overwritten = true
	} else if errors.Is(err, os.ErrNotExist) {
		return RemoveResult{Removed: true}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		result.Error = fmt.Errorf("failed to remove artifact: %w", err)
		return result
	}

	result.Removed = true
	return result
}

func overwrite(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0) //nolint:gosec // path is controlled by caller
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	zeros := make([]byte, 64*1024)
	for remaining := info.Size(); remaining > 0; {
		n := int64(len(zeros))
		if remaining < n {
			n = remaining
		}
		written, err := f.Write(zeros[:n])
		if err != nil {
			return err
		}
		remaining -= int64(written)
	}

	return f.Sync()
}
