package repository

import (
	"context"

	"github.com/imyashkale/deviceserver/internal/database"
	"github.com/imyashkale/deviceserver/internal/models"
)

// DeviceRepository defines the interface for device-association records
type DeviceRepository interface {
	Save(ctx context.Context, device *models.DeviceItem) error
	Get(ctx context.Context, thingName string) (*models.DeviceItem, error)
}

// dynamoDeviceRepository implements DeviceRepository using DynamoDB
type dynamoDeviceRepository struct {
	db *database.DeviceOperations
}

// NewDeviceRepository creates a new DynamoDB-backed device repository
func NewDeviceRepository(db *database.DeviceOperations) DeviceRepository {
	return &dynamoDeviceRepository{
		db: db,
	}
}

// Save persists a device-association record
func (r *dynamoDeviceRepository) Save(ctx context.Context, device *models.DeviceItem) error {
	return r.db.SaveDevice(ctx, device)
}

// Get retrieves a device-association record by thing name
func (r *dynamoDeviceRepository) Get(ctx context.Context, thingName string) (*models.DeviceItem, error) {
	return r.db.GetDevice(ctx, thingName)
}
