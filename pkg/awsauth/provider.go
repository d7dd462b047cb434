package awsauth

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/curlens/curlens/pkg/observability"
)

const (
	// roleSessionName identifies assumed-role sessions in CloudTrail.
	roleSessionName = "curlens-session"

	// expiryWarningHorizon is how close to expiration a bundle gets before
	// ClientFor starts warning.
	expiryWarningHorizon = 15 * time.Minute

	defaultCacheSize = 32
)

// Provider resolves credential bundles into S3 clients and caches the
// clients per bundle fingerprint.
type Provider struct {
	region  string
	cache   *lru.Cache[string, *s3.Client]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithMetrics wires cache hit/miss counters.
func WithMetrics(m *observability.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// WithCacheSize overrides the client cache capacity.
func WithCacheSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			cache, _ := lru.New[string, *s3.Client](n)
			p.cache = cache
		}
	}
}

// NewProvider creates a client provider for the given region.
func NewProvider(region string, logger *observability.Logger, opts ...ProviderOption) *Provider {
	cache, _ := lru.New[string, *s3.Client](defaultCacheSize)
	p := &Provider{
		region: region,
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ClientFor returns an S3 client for the bundle, resolving credentials on
// first use and serving the cached client afterwards. The lru cache is safe
// for concurrent callers.
func (p *Provider) ClientFor(ctx context.Context, creds Credentials) (*s3.Client, error) {
	key := creds.Fingerprint()
	if client, ok := p.cache.Get(key); ok {
		if p.metrics != nil {
			p.metrics.ClientCacheHitsTotal.Inc()
		}
		return client, nil
	}
	if p.metrics != nil {
		p.metrics.ClientCacheMissesTotal.Inc()
	}

	if creds.ExpiresWithin(expiryWarningHorizon) {
		p.logger.WithField("method", string(creds.Method())).
			Warnf("credentials expire within %s, new sessions may fail soon", expiryWarningHorizon)
	}

	cfg, err := p.resolve(ctx, creds)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg)
	p.cache.Add(key, client)
	p.logger.WithField("method", string(creds.Method())).Debug("object store client created")
	return client, nil
}

// resolve builds an aws.Config following the fixed precedence. Error text
// never includes key material.
func (p *Provider) resolve(ctx context.Context, creds Credentials) (aws.Config, error) {
	region := p.region

	switch creds.Method() {
	case MethodStatic, MethodSession:
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			)),
		)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load config with static credentials: %w", err)
		}
		return cfg, nil

	case MethodProfile:
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(creds.Profile),
		)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load config for profile %q: %w", creds.Profile, err)
		}
		return cfg, nil

	case MethodRole:
		base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load base config for role assumption: %w", err)
		}
		stsClient := sts.NewFromConfig(base)
		assume := stscreds.NewAssumeRoleProvider(stsClient, creds.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
			if creds.ExternalID != "" {
				o.ExternalID = aws.String(creds.ExternalID)
			}
		})
		base.Credentials = aws.NewCredentialsCache(assume)
		return base, nil

	default:
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load ambient config: %w", err)
		}
		return cfg, nil
	}
}
