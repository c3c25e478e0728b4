package mainconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/estate-crm/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "me-central-1", AWSAccessKeyID: "AKIDTEST", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "me-central-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDTEST", creds.AccessKeyID)
}

func TestLoadAWSConfigRejectsHalfAKeyPair(t *testing.T) {
	_, err := LoadAWSConfig(context.Background(), &appconfig.Config{AWSRegion: "us-east-1", AWSAccessKeyID: "AKIDTEST"})
	assert.ErrorIs(t, err, ErrPartialCredentials)

	_, err = LoadAWSConfig(context.Background(), &appconfig.Config{AWSRegion: "us-east-1", AWSSecretAccessKey: "secret"})
	assert.ErrorIs(t, err, ErrPartialCredentials)
}

func TestEndpointOverrideRoutesCRMServices(t *testing.T) {
	resolve := endpointOverride("http://localstack:4566", "us-east-1")

	for _, service := range []string{sqs.ServiceID, bedrockruntime.ServiceID} {
		ep, err := resolve(service, "us-east-1")
		require.NoError(t, err, service)
		assert.Equal(t, "http://localstack:4566", ep.URL)
		assert.Equal(t, "us-east-1", ep.SigningRegion)
	}

	_, err := resolve("DynamoDB", "us-east-1")
	var notFound *aws.EndpointNotFoundError
	assert.True(t, errors.As(err, &notFound), "other services keep default resolution")
}
