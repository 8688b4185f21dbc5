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

// TaskOperations handles all DynamoDB operations for device-association tasks
type TaskOperations struct {
	client    *Client
	tableName string
}

// NewTaskOperations creates a new TaskOperations instance
func NewTaskOperations(client *Client, tableName string) *TaskOperations {
	return &TaskOperations{
		client:    client,
		tableName: tableName,
	}
}

// taskRecord is the DynamoDB shape of a DeviceTaskSummary. The table is
// keyed by GroupName (partition) and TaskId (sort) so tasks for one
// group can be listed with a single Query.
type taskRecord struct {
	GroupName string              `dynamodbav:"GroupName"`
	TaskId    string              `dynamodbav:"TaskId"`
	Status    string              `dynamodbav:"Status"`
	Devices   []models.DeviceItem `dynamodbav:"Devices"`
	CreatedAt int64               `dynamodbav:"CreatedAt"`
	UpdatedAt int64               `dynamodbav:"UpdatedAt"`
}

// SaveTask creates or overwrites a task record in DynamoDB
func (to *TaskOperations) SaveTask(ctx context.Context, task *models.DeviceTaskSummary) error {
	logger.WithTask(task.TaskID, task.GroupName).Debug("Saving task in DynamoDB")

	av, err := attributevalue.MarshalMap(&taskRecord{
		GroupName: task.GroupName,
		TaskId:    task.TaskID,
		Status:    string(task.Status),
		Devices:   task.Devices,
		CreatedAt: task.CreatedAt.Unix(),
		UpdatedAt: task.UpdatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = to.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(to.tableName),
		Item:      av,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"task_id":    task.TaskID,
			"group_name": task.GroupName,
			"error":      err.Error(),
		}).Error("Failed to save task in DynamoDB")
		return fmt.Errorf("failed to save task: %w", err)
	}

	logger.WithTask(task.TaskID, task.GroupName).Info("Task saved in DynamoDB")
	return nil
}

// GetTask retrieves a task by group name and task ID from DynamoDB
func (to *TaskOperations) GetTask(ctx context.Context, groupName, taskID string) (*models.DeviceTaskSummary, error) {
	result, err := to.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(to.tableName),
		Key: map[string]types.AttributeValue{
			"GroupName": &types.AttributeValueMemberS{Value: groupName},
			"TaskId":    &types.AttributeValueMemberS{Value: taskID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if result.Item == nil {
		logger.WithTask(taskID, groupName).Warn("Task not found in DynamoDB")
		return nil, ErrNotFound
	}

	return to.unmarshalTask(result.Item)
}

// GetTasksByGroup retrieves all tasks for a group from DynamoDB
func (to *TaskOperations) GetTasksByGroup(ctx context.Context, groupName string) ([]*models.DeviceTaskSummary, error) {
	result, err := to.client.DynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(to.tableName),
		KeyConditionExpression: aws.String("GroupName = :groupName"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":groupName": &types.AttributeValueMemberS{Value: groupName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := make([]*models.DeviceTaskSummary, 0, len(result.Items))
	for _, item := range result.Items {
		task, err := to.unmarshalTask(item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// unmarshalTask converts a DynamoDB item to a DeviceTaskSummary domain model
func (to *TaskOperations) unmarshalTask(item map[string]types.AttributeValue) (*models.DeviceTaskSummary, error) {
	var rec taskRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, err
	}

	return &models.DeviceTaskSummary{
		TaskID:    rec.TaskId,
		GroupName: rec.GroupName,
		Status:    models.TaskStatus(rec.Status),
		Devices:   rec.Devices,
		CreatedAt: time.Unix(rec.CreatedAt, 0),
		UpdatedAt: time.Unix(rec.UpdatedAt, 0),
	}, nil
}
