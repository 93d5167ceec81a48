//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
	"github.com/yvsainath/postgres-backup-simple/internal/services/credentials"
	"github.com/yvsainath/postgres-backup-simple/internal/services/retention"
	"github.com/yvsainath/postgres-backup-simple/internal/services/storage"
)

// getStorage returns a storage service for a test bucket, typically MinIO
// with AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY set.
func getStorage(t *testing.T) (*storage.Impl, models.StorageConfig) {
	t.Helper()

	bucket := os.Getenv("TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("TEST_S3_BUCKET not set")
	}

	region := os.Getenv("TEST_S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	cfg := models.StorageConfig{
		Bucket:       bucket,
		Prefix:       fmt.Sprintf("pgbackup-it-%d", time.Now().UnixNano()),
		Region:       region,
		Endpoint:     endpoint,
		UsePathStyle: endpoint != "",
	}

	awsCfg, err := credentials.LoadAWSConfig(context.Background(), cfg, models.IdentityConfig{})
	require.NoError(t, err)

	return storage.New(testLogger(), awsCfg, cfg), cfg
}

func TestStorage_UploadListDelete_Integration(t *testing.T) {
	svc, cfg := getStorage(t)
	ctx := context.Background()

	require.NoError(t, svc.Probe(ctx))

	path := filepath.Join(t.TempDir(), "app_20240615_020000.sql.gz")
	require.NoError(t, os.WriteFile(path, []byte("not really gzip"), 0o600))

	key := models.ObjectKey(cfg.Prefix, "app", "20240615_020000")
	result, err := svc.Upload(ctx, path, key, map[string]string{"database": "app"})
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, int64(15), result.SizeBytes)

	objects, err := svc.List(ctx, models.DatabasePrefix(cfg.Prefix, "app"))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, key, objects[0].Key)

	require.NoError(t, svc.Delete(ctx, key))

	objects, err = svc.List(ctx, models.DatabasePrefix(cfg.Prefix, "app"))
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestRetention_Sweep_Integration(t *testing.T) {
	svc, cfg := getStorage(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "artifact.sql.gz")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	for _, ts := range []string{"20240101_020000", "20240601_020000", "20241231_020000"} {
		result, err := svc.Upload(ctx, path, models.ObjectKey(cfg.Prefix, "app", ts), nil)
		require.NoError(t, err)
		require.Nil(t, result.Error)
	}

	cutoff := retention.Cutoff(time.Date(2024, 6, 22, 12, 0, 0, 0, time.UTC), 7)
	sweeper := retention.New(testLogger(), svc)

	result, err := sweeper.Sweep(ctx, cfg.Prefix, "app", cutoff)
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 2)
	assert.Empty(t, result.Errors)

	objects, err := svc.List(ctx, models.DatabasePrefix(cfg.Prefix, "app"))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, models.ObjectKey(cfg.Prefix, "app", "20241231_020000"), objects[0].Key)

	require.NoError(t, svc.Delete(ctx, objects[0].Key))
}
