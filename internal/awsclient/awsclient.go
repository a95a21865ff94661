// Package awsclient resolves the shared AWS configuration used by the
// Bedrock, Lambda and EC2 service clients.
package awsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// DefaultRegion is used when neither the environment nor the shared config
// files name a region and the caller gave no fallback.
const DefaultRegion = "us-east-1"

// Load resolves credentials and region through the SDK default chain:
// environment, shared config and credentials files, SSO, then the
// container or instance role. fallbackRegion applies only when the chain
// yields no region.
func Load(ctx context.Context, fallbackRegion string, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = fallbackRegion
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// WithTimeout bounds every HTTP round trip made by clients built from the
// loaded config.
func WithTimeout(d time.Duration) func(*awsconfig.LoadOptions) error {
	return awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(d))
}

// CheckCredentials reports whether cfg can produce credentials.
func CheckCredentials(ctx context.Context, cfg aws.Config) error {
	if cfg.Credentials == nil {
		return fmt.Errorf("no aws credentials provider configured")
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	if !creds.HasKeys() {
		return fmt.Errorf("aws credentials from %s have no keys", creds.Source)
	}
	return nil
}
