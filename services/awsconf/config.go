package awsconf

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/pkg/errors"
)

// Load loads the default AWS config (env, shared files, instance role).
// AWS_ENDPOINT points every client at another endpoint, e.g. LocalStack.
func Load(ctx context.Context) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return cfg, errors.Wrap(err, "loading aws config")
	}

	if endpoint := os.Getenv("AWS_ENDPOINT"); endpoint != "" {
		signingRegion := cfg.Region
		cfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				sr := signingRegion
				if sr == "" {
					sr = region
				}
				return aws.Endpoint{URL: endpoint, SigningRegion: sr, HostnameImmutable: true}, nil
			},
		)
	}
	return cfg, nil
}
