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

// DeviceOperations handles all DynamoDB operations for device-association
// records. The table is keyed by ThingName and holds the group each
// device is currently associated with.
type DeviceOperations struct {
	client    *Client
	tableName string
}

// NewDeviceOperations creates a new DeviceOperations instance
func NewDeviceOperations(client *Client, tableName string) *DeviceOperations {
	return &DeviceOperations{
		client:    client,
		tableName: tableName,
	}
}

type deviceRecord struct {
	ThingName            string `dynamodbav:"ThingName"`
	Type                 string `dynamodbav:"Type"`
	ProvisioningTemplate string `dynamodbav:"ProvisioningTemplate"`
	GroupName            string `dynamodbav:"GroupName"`
	Status               string `dynamodbav:"Status"`
	StatusMessage        string `dynamodbav:"StatusMessage,omitempty"`
	ThingArn             string `dynamodbav:"ThingArn,omitempty"`
	CertificateArn       string `dynamodbav:"CertificateArn,omitempty"`
	UpdatedAt            int64  `dynamodbav:"UpdatedAt"`
}

// SaveDevice creates or overwrites a device record in DynamoDB
func (do *DeviceOperations) SaveDevice(ctx context.Context, device *models.DeviceItem) error {
	av, err := attributevalue.MarshalMap(&deviceRecord{
		ThingName:            device.ThingName,
		Type:                 device.Type,
		ProvisioningTemplate: device.ProvisioningTemplate,
		GroupName:            device.GroupName,
		Status:               string(device.Status),
		StatusMessage:        device.StatusMessage,
		ThingArn:             device.ThingArn,
		CertificateArn:       device.CertificateArn,
		UpdatedAt:            time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	_, err = do.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(do.tableName),
		Item:      av,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"thing_name": device.ThingName,
			"error":      err.Error(),
		}).Error("Failed to save device in DynamoDB")
		return fmt.Errorf("failed to save device: %w", err)
	}

	return nil
}

// GetDevice retrieves a device record by thing name from DynamoDB
func (do *DeviceOperations) GetDevice(ctx context.Context, thingName string) (*models.DeviceItem, error) {
	result, err := do.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(do.tableName),
		Key: map[string]types.AttributeValue{
			"ThingName": &types.AttributeValueMemberS{Value: thingName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var rec deviceRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device: %w", err)
	}

	return &models.DeviceItem{
		ThingName:            rec.ThingName,
		Type:                 rec.Type,
		ProvisioningTemplate: rec.ProvisioningTemplate,
		GroupName:            rec.GroupName,
		Status:               models.TaskStatus(rec.Status),
		StatusMessage:        rec.StatusMessage,
		ThingArn:             rec.ThingArn,
		CertificateArn:       rec.CertificateArn,
		UpdatedAt:            time.Unix(rec.UpdatedAt, 0),
	}, nil
}
