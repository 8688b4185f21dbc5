package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/deviceserver/internal/logger"
	"github.com/imyashkale/deviceserver/internal/models"
)

// GroupOperations handles all DynamoDB operations for Greengrass group records
type GroupOperations struct {
	client    *Client
	tableName string
}

// NewGroupOperations creates a new GroupOperations instance
func NewGroupOperations(client *Client, tableName string) *GroupOperations {
	return &GroupOperations{
		client:    client,
		tableName: tableName,
	}
}

type groupRecord struct {
	Name              string `dynamodbav:"Name"`
	Id                string `dynamodbav:"Id"`
	TemplateName      string `dynamodbav:"TemplateName"`
	TemplateVersionNo int    `dynamodbav:"TemplateVersionNo"`
	TaskStatus        string `dynamodbav:"TaskStatus,omitempty"`
	StatusMessage     string `dynamodbav:"StatusMessage,omitempty"`
	VersionId         string `dynamodbav:"VersionId,omitempty"`
	CreatedAt         int64  `dynamodbav:"CreatedAt"`
	UpdatedAt         int64  `dynamodbav:"UpdatedAt"`
}

// GetGroup retrieves a group record by name from DynamoDB
func (g *GroupOperations) GetGroup(ctx context.Context, name string) (*models.GroupItem, error) {
	result, err := g.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(g.tableName),
		Key: map[string]types.AttributeValue{
			"Name": &types.AttributeValueMemberS{Value: name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	if result.Item == nil {
		logger.WithField("group_name", name).Warn("Group not found in DynamoDB")
		return nil, ErrNotFound
	}

	var rec groupRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group: %w", err)
	}

	return &models.GroupItem{
		ID:                rec.Id,
		Name:              rec.Name,
		TemplateName:      rec.TemplateName,
		TemplateVersionNo: rec.TemplateVersionNo,
		TaskStatus:        models.TaskStatus(rec.TaskStatus),
		StatusMessage:     rec.StatusMessage,
		VersionID:         rec.VersionId,
		CreatedAt:         time.Unix(rec.CreatedAt, 0),
		UpdatedAt:         time.Unix(rec.UpdatedAt, 0),
	}, nil
}

// SaveGroup creates or overwrites a group record in DynamoDB
func (g *GroupOperations) SaveGroup(ctx context.Context, group *models.GroupItem) error {
	createdAt := group.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	av, err := attributevalue.MarshalMap(&groupRecord{
		Name:              group.Name,
		Id:                group.ID,
		TemplateName:      group.TemplateName,
		TemplateVersionNo: group.TemplateVersionNo,
		TaskStatus:        string(group.TaskStatus),
		StatusMessage:     group.StatusMessage,
		VersionId:         group.VersionID,
		CreatedAt:         createdAt.Unix(),
		UpdatedAt:         time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}

	_, err = g.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(g.tableName),
		Item:      av,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"group_name": group.Name,
			"error":      err.Error(),
		}).Error("Failed to save group in DynamoDB")
		return fmt.Errorf("failed to save group: %w", err)
	}

	return nil
}
