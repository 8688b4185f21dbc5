package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/deviceserver/internal/models"
)

// TemplateOperations handles all DynamoDB operations for group
// configuration templates. The table is keyed by Name (partition) and
// VersionNo (sort).
type TemplateOperations struct {
	client    *Client
	tableName string
}

// NewTemplateOperations creates a new TemplateOperations instance
func NewTemplateOperations(client *Client, tableName string) *TemplateOperations {
	return &TemplateOperations{
		client:    client,
		tableName: tableName,
	}
}

type templateRecord struct {
	Name      string `dynamodbav:"Name"`
	VersionNo int    `dynamodbav:"VersionNo"`
	Document  string `dynamodbav:"Document"`
	CreatedAt int64  `dynamodbav:"CreatedAt"`
	UpdatedAt int64  `dynamodbav:"UpdatedAt"`
}

// GetTemplate retrieves a template by name and version number from DynamoDB
func (to *TemplateOperations) GetTemplate(ctx context.Context, name string, versionNo int) (*models.TemplateItem, error) {
	result, err := to.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(to.tableName),
		Key: map[string]types.AttributeValue{
			"Name":      &types.AttributeValueMemberS{Value: name},
			"VersionNo": &types.AttributeValueMemberN{Value: strconv.Itoa(versionNo)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var rec templateRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	return &models.TemplateItem{
		Name:      rec.Name,
		VersionNo: rec.VersionNo,
		Document:  rec.Document,
		CreatedAt: time.Unix(rec.CreatedAt, 0),
		UpdatedAt: time.Unix(rec.UpdatedAt, 0),
	}, nil
}
