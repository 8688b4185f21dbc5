package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/imyashkale/deviceserver/internal/logger"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Config holds the DynamoDB configuration
type Config struct {
	Region string
}

// Client wraps the DynamoDB client
type Client struct {
	DynamoDB *dynamodb.Client
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &Client{
		DynamoDB: dynamodb.NewFromConfig(awsCfg),
	}, nil
}

// VerifyTable checks that a DynamoDB table exists and is reachable.
// A failure is logged but left to the caller to treat as fatal or not.
func (c *Client) VerifyTable(ctx context.Context, tableName string) error {
	_, err := c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("table %s does not exist or cannot be accessed: %w", tableName, err)
	}

	logger.WithField("table", tableName).Debug("DynamoDB table verified")
	return nil
}
