// Package mainconfig holds the AWS wiring shared by the estate-crm binaries.
package mainconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	appconfig "github.com/wolfman30/estate-crm/internal/config"
)

// ErrPartialCredentials is returned when only one of the static key pair is set.
var ErrPartialCredentials = errors.New("mainconfig: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")

// overrideServices are the clients the CRM builds: the outbox queue and the
// Bedrock assistant provider.
var overrideServices = map[string]bool{
	sqs.ServiceID:            true,
	bedrockruntime.ServiceID: true,
}

// LoadAWSConfig builds the SDK config from the app config. Static keys win
// over the default chain, and AWS_ENDPOINT_OVERRIDE points the CRM's clients
// at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	key := strings.TrimSpace(cfg.AWSAccessKeyID)
	secret := strings.TrimSpace(cfg.AWSSecretAccessKey)
	if (key == "") != (secret == "") {
		return aws.Config{}, ErrPartialCredentials
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if key != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		opts = append(opts, config.WithEndpointResolverWithOptions(endpointOverride(endpoint, cfg.AWSRegion)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	return awsCfg, nil
}

// endpointOverride routes the CRM's services to endpoint; anything else
// falls through to the SDK default resolution.
func endpointOverride(endpoint, region string) aws.EndpointResolverWithOptionsFunc {
	return func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
		if !overrideServices[service] {
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}
		return aws.Endpoint{
			URL:               endpoint,
			PartitionID:       "aws",
			SigningRegion:     region,
			HostnameImmutable: true,
		}, nil
	}
}
