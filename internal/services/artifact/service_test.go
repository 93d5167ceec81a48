package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
)

func TestPrepareDir_CreatesWithOwnerOnlyMode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch", "nested")

	require.NoError(t, PrepareDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestPrepareDir_TightensExistingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")
	require.NoError(t, os.Mkdir(dir, 0o755))

	require.NoError(t, PrepareDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestVerify_NonEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sql.gz")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	size, err := Verify(path)

	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestVerify_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sql.gz")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Verify(path)

	assert.True(t, errors.Is(err, backuperr.ErrEmptyArtifact))
}

func TestVerify_Missing(t *testing.T) {
	_, err := Verify(filepath.Join(t.TempDir(), "missing.sql.gz"))

	assert.True(t, errors.Is(err, backuperr.ErrEmptyArtifact))
}

func TestChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sql.gz")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, err := Checksum(path)

	require.NoError(t, err)
	// BLAKE2b-256("abc")
	assert.Equal(t, "bddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319", sum)
}

func TestChecksum_Missing(t *testing.T) {
	_, err := Checksum(filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestSecureRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.sql.gz")
	require.NoError(t, os.WriteFile(path, make([]byte, 200*1024), 0o600))

	result := SecureRemove(path)

	assert.NoError(t, result.Error)
	assert.True(t, result.Overwritten)
	assert.True(t, result.Removed)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSecureRemove_MissingFile(t *testing.T) {
	result := SecureRemove(filepath.Join(t.TempDir(), "missing"))

	assert.NoError(t, result.Error)
	assert.True(t, result.Removed)
	assert.False(t, result.Overwritten)
}

func TestSecureRemove_FallsBackWhenNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write read-only files")
	}
	path := filepath.Join(t.TempDir(), "app.sql.gz")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o400))

	result := SecureRemove(path)

	assert.NoError(t, result.Error)
	assert.False(t, result.Overwritten)
	assert.True(t, result.Removed)
}
