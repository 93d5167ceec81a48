//go:build integration

package integration

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
	"github.com/yvsainath/postgres-backup-simple/internal/services/postgres"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func getPostgresConfig(t *testing.T) (models.PostgresConfig, string) {
	t.Helper()

	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("TEST_POSTGRES_HOST not set")
	}

	portStr := os.Getenv("TEST_POSTGRES_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	database := os.Getenv("TEST_POSTGRES_DB")
	if database == "" {
		t.Skip("TEST_POSTGRES_DB not set")
	}

	user := os.Getenv("TEST_POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	sslMode := os.Getenv("TEST_POSTGRES_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	return models.PostgresConfig{
		Host:          host,
		Port:          port,
		Username:      user,
		Password:      os.Getenv("TEST_POSTGRES_PASSWORD"),
		SSLMode:       sslMode,
		MaintenanceDB: models.DefaultMaintenanceDB,
	}, database
}

func TestCatalog_Version_Integration(t *testing.T) {
	cfg, _ := getPostgresConfig(t)

	catalog := postgres.NewCatalog(testLogger())
	version, err := catalog.Version(context.Background(), cfg)

	require.NoError(t, err)
	assert.Contains(t, version, "PostgreSQL")
}

func TestCatalog_DatabaseExists_Integration(t *testing.T) {
	cfg, database := getPostgresConfig(t)

	catalog := postgres.NewCatalog(testLogger())

	exists, err := catalog.DatabaseExists(context.Background(), cfg, database)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = catalog.DatabaseExists(context.Background(), cfg, "pgbackup_missing_db")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostgresDump_Integration(t *testing.T) {
	cfg, database := getPostgresConfig(t)

	outputPath := filepath.Join(t.TempDir(), postgres.GetOutputFilename(database, "20240615_020000"))

	svc := postgres.New(testLogger())

	result, err := svc.Dump(context.Background(), cfg, database, outputPath)

	require.NoError(t, err)
	require.NotNil(t, result)
	require.Nil(t, result.Error)
	assert.Equal(t, outputPath, result.OutputPath)
	assert.Greater(t, result.RawBytes, int64(0))
	assert.Greater(t, result.SizeBytes, int64(0))
	assert.Greater(t, result.Duration, time.Duration(0))

	// The artifact is a gzip stream of a plain SQL dump.
	f, err := os.Open(outputPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	head, err := bufio.NewReader(gz).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(head, "--"), "expected SQL comment header, got %q", head)

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPostgresDump_InvalidHost_Integration(t *testing.T) {
	cfg := models.PostgresConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		Username: "postgres",
		SSLMode:  "disable",
	}

	outputPath := filepath.Join(t.TempDir(), "testdb_20240615_020000.sql.gz")

	svc := postgres.New(testLogger())

	result, err := svc.Dump(context.Background(), cfg, "testdb", outputPath)

	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Error)
	assert.ErrorIs(t, result.Error, backuperr.ErrDump)

	// Verify partial file was cleaned up
	_, err = os.Stat(outputPath)
	assert.True(t, os.IsNotExist(err))
}
