package credentials

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
	"github.com/yvsainath/postgres-backup-simple/internal/retry"
)

type mockIdentityClient struct {
	calls    int
	identity func(call int) (*sts.GetCallerIdentityOutput, error)
}

func (m *mockIdentityClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.calls++
	if m.identity != nil {
		return m.identity(m.calls)
	}
	return &sts.GetCallerIdentityOutput{
		Arn:     aws.String("arn:aws:sts::123456789012:assumed-role/backup/pgbackup"),
		Account: aws.String("123456789012"),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func tokenFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("jwt"), 0o600))
	return path
}

func TestDetectMode(t *testing.T) {
	assert.Equal(t, ModeAmbient, DetectMode(models.IdentityConfig{}))
	assert.Equal(t, ModeAmbient, DetectMode(models.IdentityConfig{WebIdentityTokenFile: "/nonexistent/token"}))
	assert.Equal(t, ModeWorkloadIdentity, DetectMode(models.IdentityConfig{WebIdentityTokenFile: tokenFile(t)}))
}

func TestResolve_Ambient_Success(t *testing.T) {
	client := &mockIdentityClient{}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{})

	require.NoError(t, err)
	assert.Equal(t, ModeAmbient, identity.Mode)
	assert.True(t, identity.Confirmed)
	assert.Equal(t, "123456789012", identity.Account)
	assert.Equal(t, 1, client.calls)
}

func TestResolve_Ambient_FailureIsFatal(t *testing.T) {
	client := &mockIdentityClient{
		identity: func(int) (*sts.GetCallerIdentityOutput, error) {
			return nil, errors.New("no EC2 IMDS role found")
		},
	}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{})

	require.Error(t, err)
	assert.Nil(t, identity)
	assert.True(t, errors.Is(err, backuperr.ErrCredential))
	assert.True(t, backuperr.IsFatal(err))
	assert.Equal(t, 1, client.calls)
}

func TestResolve_WorkloadIdentity_Success(t *testing.T) {
	client := &mockIdentityClient{}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{
		WebIdentityTokenFile: tokenFile(t),
		RoleARN:              "arn:aws:iam::123456789012:role/backup",
	})

	require.NoError(t, err)
	assert.Equal(t, ModeWorkloadIdentity, identity.Mode)
	assert.True(t, identity.Confirmed)
}

func TestResolve_WorkloadIdentity_SoftFails(t *testing.T) {
	client := &mockIdentityClient{
		identity: func(int) (*sts.GetCallerIdentityOutput, error) {
			return nil, errors.New("InvalidIdentityToken")
		},
	}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{
		WebIdentityTokenFile: tokenFile(t),
		RoleARN:              "arn:aws:iam::123456789012:role/backup",
	})

	require.NoError(t, err)
	assert.Equal(t, ModeWorkloadIdentity, identity.Mode)
	assert.False(t, identity.Confirmed)
	assert.Equal(t, 3, client.calls)
}

func TestResolve_WorkloadIdentity_ConfirmedAfterRetry(t *testing.T) {
	client := &mockIdentityClient{
		identity: func(call int) (*sts.GetCallerIdentityOutput, error) {
			if call == 1 {
				return nil, errors.New("token not yet valid")
			}
			return &sts.GetCallerIdentityOutput{Account: aws.String("42")}, nil
		},
	}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{WebIdentityTokenFile: tokenFile(t)})

	require.NoError(t, err)
	assert.True(t, identity.Confirmed)
	assert.Equal(t, "42", identity.Account)
	assert.Equal(t, 2, client.calls)
}

func staticProvider(key, secret string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: key, SecretAccessKey: secret, Source: "test"}, nil
	})
}

func TestResolve_Ambient_CustomEndpointSkipsSTS(t *testing.T) {
	client := &mockIdentityClient{
		identity: func(call int) (*sts.GetCallerIdentityOutput, error) {
			return nil, errors.New("InvalidClientTokenId: the security token included in the request is invalid")
		},
	}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3)).
		WithEndpoint("http://minio:9000", staticProvider("minioadmin", "minioadmin"))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{})

	require.NoError(t, err)
	assert.True(t, identity.Confirmed)
	assert.Equal(t, ModeAmbient, identity.Mode)
	assert.Equal(t, 0, client.calls)
}

func TestResolve_Ambient_CustomEndpointWithoutCredentials(t *testing.T) {
	tests := []struct {
		name     string
		provider aws.CredentialsProvider
	}{
		{"retrieve error", aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{}, errors.New("no EC2 IMDS role found")
		})},
		{"empty keys", staticProvider("", "")},
		{"no provider", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockIdentityClient{}
			resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3)).
				WithEndpoint("http://minio:9000", tt.provider)

			identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{})

			require.Error(t, err)
			assert.Nil(t, identity)
			assert.True(t, errors.Is(err, backuperr.ErrCredential))
			assert.Equal(t, 0, client.calls)
		})
	}
}

func TestNewResolver_CustomEndpointUsesConfigCredentials(t *testing.T) {
	awsCfg := aws.Config{
		Region:      "us-east-1",
		Credentials: staticProvider("minioadmin", "minioadmin"),
	}
	resolver := NewResolver(testLogger(), awsCfg,
		models.StorageConfig{Region: "us-east-1", Endpoint: "http://minio:9000"}, retry.Immediate(1))

	identity, err := resolver.Resolve(context.Background(), models.IdentityConfig{})

	require.NoError(t, err)
	assert.True(t, identity.Confirmed)
	assert.Equal(t, "http://minio:9000", resolver.endpoint)
}

func TestResolve_WorkloadIdentity_CustomEndpointStillUsesSTS(t *testing.T) {
	client := &mockIdentityClient{}
	resolver := NewResolverWithClient(testLogger(), client, retry.Immediate(3)).
		WithEndpoint("http://minio:9000", staticProvider("k", "s"))

	identity, err := resolver.Resolve(context.Background(),
		models.IdentityConfig{WebIdentityTokenFile: tokenFile(t), RoleARN: "arn:aws:iam::1:role/r"})

	require.NoError(t, err)
	assert.Equal(t, ModeWorkloadIdentity, identity.Mode)
	assert.Equal(t, 1, client.calls)
}

func TestLoadAWSConfig_WebIdentity(t *testing.T) {
	awsCfg, err := LoadAWSConfig(context.Background(),
		models.StorageConfig{Region: "eu-west-1"},
		models.IdentityConfig{WebIdentityTokenFile: tokenFile(t), RoleARN: "arn:aws:iam::1:role/r"},
	)

	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", awsCfg.Region)
	_, ok := awsCfg.Credentials.(*aws.CredentialsCache)
	assert.True(t, ok)
}
