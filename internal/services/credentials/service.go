// Package credentials resolves and verifies the AWS identity used for storage.
package credentials

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
	"github.com/yvsainath/postgres-backup-simple/internal/retry"
)

// Mode is the credential source in use.
type Mode string

// Credential modes.
const (
	ModeWorkloadIdentity Mode = "workload-identity"
	ModeAmbient          Mode = "ambient"
)

// IdentityClient wraps the STS call used to confirm an identity.
type IdentityClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity describes the resolved caller.
type Identity struct {
	Mode      Mode
	ARN       string
	Account   string
	Confirmed bool
}

// LoadAWSConfig builds the AWS configuration for a run. When the workload
// identity markers are present, credentials come from the web-identity token.
func LoadAWSConfig(ctx context.Context, storage models.StorageConfig, identity models.IdentityConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(storage.Region))
	if err != nil {
		return aws.Config{}, backuperr.New(backuperr.KindCredential, "failed to load AWS configuration", err)
	}

	if identity.WebIdentityTokenFile != "" && identity.RoleARN != "" {
		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(awsCfg),
			identity.RoleARN,
			stscreds.IdentityTokenFile(identity.WebIdentityTokenFile),
			func(o *stscreds.WebIdentityRoleOptions) {
				o.RoleSessionName = "pgbackup"
			},
		)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return awsCfg, nil
}

// Service defines the interface for identity resolution.
type Service interface {
	Resolve(ctx context.Context, identity models.IdentityConfig) (*Identity, error)
}

// Resolver determines the credential mode and confirms the identity.
type Resolver struct {
	client   IdentityClient
	endpoint string
	provider aws.CredentialsProvider
	policy   retry.Policy
	logger   zerolog.Logger
}

// NewResolver creates a resolver from an AWS configuration. With a custom
// storage endpoint, ambient credentials are checked locally instead of
// against AWS STS.
func NewResolver(logger zerolog.Logger, awsCfg aws.Config, storage models.StorageConfig, policy retry.Policy) *Resolver {
	r := NewResolverWithClient(logger, sts.NewFromConfig(awsCfg), policy)
	if storage.Endpoint != "" {
		r = r.WithEndpoint(storage.Endpoint, awsCfg.Credentials)
	}
	return r
}

// NewResolverWithClient creates a resolver with a custom STS client (for testing).
func NewResolverWithClient(logger zerolog.Logger, client IdentityClient, policy retry.Policy) *Resolver {
	return &Resolver{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "credentials").Logger(),
	}
}

// WithEndpoint makes ambient resolution retrieve credentials from provider
// rather than call STS. S3-compatible stores issue keys AWS does not know.
func (r *Resolver) WithEndpoint(endpoint string, provider aws.CredentialsProvider) *Resolver {
	r.endpoint = endpoint
	r.provider = provider
	return r
}

// DetectMode returns ModeWorkloadIdentity when the token file marker names an existing file.
func DetectMode(identity models.IdentityConfig) Mode {
	if identity.WebIdentityTokenFile == "" {
		return ModeAmbient
	}
	if _, err := os.Stat(identity.WebIdentityTokenFile); err != nil {
		return ModeAmbient
	}
	return ModeWorkloadIdentity
}

// Resolve confirms a usable identity. Workload-identity tokens may not be
// valid yet at container start, so in that mode a failed check is retried
// and then only logged. In ambient mode a failed check is a CredentialError.
func (r *Resolver) Resolve(ctx context.Context, identity models.IdentityConfig) (*Identity, error) {
	mode := DetectMode(identity)
	result := &Identity{Mode: mode}

	r.logger.Info().
		Str("mode", string(mode)).
		Str("role_arn", identity.RoleARN).
		Msg("resolving storage credentials")

	if mode == ModeWorkloadIdentity {
		var out *sts.GetCallerIdentityOutput
		attempts, err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
			var callErr error
			out, callErr = r.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
			return callErr
		})
		if err != nil {
			r.logger.Warn().
				Err(err).
				Int("attempts", attempts).
				Msg("workload identity not confirmed yet, proceeding")
			return result, nil
		}
		r.fill(result, out)
		return result, nil
	}

	if r.endpoint != "" {
		return r.resolveLocal(ctx, result)
	}

	out, err := r.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, backuperr.New(backuperr.KindCredential, "no usable AWS identity", err)
	}
	r.fill(result, out)
	return result, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, result *Identity) (*Identity, error) {
	if r.provider == nil {
		return nil, backuperr.New(backuperr.KindCredential, "no usable credentials", errors.New("no credentials provider configured"))
	}

	creds, err := r.provider.Retrieve(ctx)
	if err != nil {
		return nil, backuperr.New(backuperr.KindCredential, "no usable credentials", err)
	}
	if !creds.HasKeys() {
		return nil, backuperr.New(backuperr.KindCredential, "no usable credentials", errors.New("access key or secret key is empty"))
	}

	result.Confirmed = true
	r.logger.Info().
		Str("endpoint", r.endpoint).
		Str("source", creds.Source).
		Msg("credentials available for custom storage endpoint")
	return result, nil
}

func (r *Resolver) fill(result *Identity, out *sts.GetCallerIdentityOutput) {
	result.Confirmed = true
	if out != nil {
		result.ARN = aws.ToString(out.Arn)
		result.Account = aws.ToString(out.Account)
	}

	r.logger.Info().
		Str("arn", result.ARN).
		Str("account", result.Account).
		Msgf("identity confirmed via %s credentials", result.Mode)
}
