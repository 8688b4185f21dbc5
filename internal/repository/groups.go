package repository

import (
	"context"

	"github.com/imyashkale/deviceserver/internal/database"
	"github.com/imyashkale/deviceserver/internal/models"
)

// GroupRepository defines the interface for Greengrass group records
type GroupRepository interface {
	Get(ctx context.Context, name string) (*models.GroupItem, error)
	Save(ctx context.Context, group *models.GroupItem) error
}

// dynamoGroupRepository implements GroupRepository using DynamoDB
type dynamoGroupRepository struct {
	db *database.GroupOperations
}

// NewGroupRepository creates a new DynamoDB-backed group repository
func NewGroupRepository(db *database.GroupOperations) GroupRepository {
	return &dynamoGroupRepository{
		db: db,
	}
}

// Get retrieves a group record by name
func (r *dynamoGroupRepository) Get(ctx context.Context, name string) (*models.GroupItem, error) {
	return r.db.GetGroup(ctx, name)
}

// Save persists a group record with its latest task outcome
func (r *dynamoGroupRepository) Save(ctx context.Context, group *models.GroupItem) error {
	return r.db.SaveGroup(ctx, group)
}
