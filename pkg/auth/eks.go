package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	// EKSTokenPrefix prefixes every IAM authenticator token.
	EKSTokenPrefix = "k8s-aws-v1."

	// EKSTokenTTL is how long a presigned token is accepted by the server.
	EKSTokenTTL = 15 * time.Minute

	eksClusterIDHeader = "x-k8s-aws-id"
	eksPresignExpiry   = "60"
	// sha256 of an empty payload.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// EKSConfig configures an EKSProvider.
type EKSConfig struct {
	ClusterName string
	Region      string
	// RoleARN is assumed before signing when set.
	RoleARN     string
	SessionName string
	// Static credentials. When AccessKeyID is empty the default AWS
	// credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Credentials overrides every other credential setting.
	Credentials aws.CredentialsProvider
}

// EKSProvider produces IAM authenticator tokens: presigned STS
// GetCallerIdentity URLs bound to a cluster name.
type EKSProvider struct {
	*tokenCache
	cfg    EKSConfig
	signer *v4.Signer
	creds  aws.CredentialsProvider
}

// NewEKSProvider validates cfg and returns a provider for it. Credentials are
// resolved on first refresh.
func NewEKSProvider(cfg EKSConfig, opts ...Option) (*EKSProvider, error) {
	if cfg.ClusterName == "" {
		return nil, authError("eks", "cluster name is required", nil)
	}
	if cfg.Region == "" {
		return nil, authError("eks", "region is required", nil)
	}
	if cfg.SessionName == "" {
		cfg.SessionName = "k8s-resource-client"
	}

	p := &EKSProvider{cfg: cfg, signer: v4.NewSigner()}
	p.tokenCache = newTokenCache("eks", p.presign, opts)
	return p, nil
}

// STSPartition returns the partition and DNS suffix for region.
func STSPartition(region string) (partition, suffix string) {
	switch {
	case strings.HasPrefix(region, "cn-"):
		return "aws-cn", "amazonaws.com.cn"
	case strings.HasPrefix(region, "us-gov-"):
		return "aws-us-gov", "amazonaws.com"
	default:
		return "aws", "amazonaws.com"
	}
}

// STSEndpoint returns the regional STS endpoint for region.
func STSEndpoint(region string) string {
	_, suffix := STSPartition(region)
	return fmt.Sprintf("https://sts.%s.%s", region, suffix)
}

func (p *EKSProvider) presign(ctx context.Context) (string, time.Time, error) {
	creds, err := p.credentials(ctx)
	if err != nil {
		return "", time.Time{}, authError("eks", "failed to load AWS credentials", err)
	}
	value, err := creds.Retrieve(ctx)
	if err != nil {
		return "", time.Time{}, authError("eks", "failed to retrieve AWS credentials", err)
	}

	endpoint := STSEndpoint(p.cfg.Region) + "/?Action=GetCallerIdentity&Version=2011-06-15&X-Amz-Expires=" + eksPresignExpiry
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", time.Time{}, authError("eks", "failed to build STS request", err)
	}
	req.Header.Set(eksClusterIDHeader, p.cfg.ClusterName)

	now := p.opts.now()
	signed, _, err := p.signer.PresignHTTP(ctx, value, req, emptyPayloadHash, "sts", p.cfg.Region, now.UTC())
	if err != nil {
		return "", time.Time{}, authError("eks", "failed to presign STS request", err)
	}

	token := EKSTokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(signed))
	return token, now.Add(EKSTokenTTL), nil
}

func (p *EKSProvider) credentials(ctx context.Context) (aws.CredentialsProvider, error) {
	if p.creds != nil {
		return p.creds, nil
	}

	var base aws.CredentialsProvider
	switch {
	case p.cfg.Credentials != nil:
		base = p.cfg.Credentials
	case p.cfg.AccessKeyID != "":
		base = credentials.NewStaticCredentialsProvider(p.cfg.AccessKeyID, p.cfg.SecretAccessKey, p.cfg.SessionToken)
	}

	if base != nil && p.cfg.RoleARN == "" {
		p.creds = base
		return base, nil
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(p.cfg.Region)}
	if base != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(base))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	creds := awsCfg.Credentials
	if p.cfg.RoleARN != "" {
		client := sts.NewFromConfig(awsCfg)
		creds = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(client, p.cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = p.cfg.SessionName
		}))
	}
	if creds == nil {
		return nil, fmt.Errorf("no AWS credentials available")
	}
	p.creds = creds
	return creds, nil
}
