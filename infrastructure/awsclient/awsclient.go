package awsclient

import (
	"context"
	"fmt"

	"linkhealth/infrastructure/configuration"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// LoadConfig resolves credentials from the default AWS chain.
func LoadConfig(ctx context.Context, cfg configuration.Aws) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewDynamoDB returns a client, pointed at cfg.Endpoint when set (e.g. DynamoDB Local).
func NewDynamoDB(awsCfg aws.Config, cfg configuration.Aws) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

// NewSQS returns a client, pointed at cfg.Endpoint when set (e.g. LocalStack).
func NewSQS(awsCfg aws.Config, cfg configuration.Aws) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}
