package repository

import (
	"context"

	"github.com/imyashkale/deviceserver/internal/database"
	"github.com/imyashkale/deviceserver/internal/models"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = database.ErrNotFound
)

// TaskRepository defines the interface for device-association task storage
type TaskRepository interface {
	Save(ctx context.Context, task *models.DeviceTaskSummary) error
	Get(ctx context.Context, groupName, taskID string) (*models.DeviceTaskSummary, error)
	ListByGroup(ctx context.Context, groupName string) ([]*models.DeviceTaskSummary, error)
}

// dynamoTaskRepository implements TaskRepository using DynamoDB
type dynamoTaskRepository struct {
	db *database.TaskOperations
}

// NewTaskRepository creates a new DynamoDB-backed task repository
func NewTaskRepository(db *database.TaskOperations) TaskRepository {
	return &dynamoTaskRepository{
		db: db,
	}
}

// Save persists a task record including its per-device statuses
func (r *dynamoTaskRepository) Save(ctx context.Context, task *models.DeviceTaskSummary) error {
	return r.db.SaveTask(ctx, task)
}

// Get retrieves a task by group name and task ID
func (r *dynamoTaskRepository) Get(ctx context.Context, groupName, taskID string) (*models.DeviceTaskSummary, error) {
	return r.db.GetTask(ctx, groupName, taskID)
}

// ListByGroup retrieves all tasks recorded for a group
func (r *dynamoTaskRepository) ListByGroup(ctx context.Context, groupName string) ([]*models.DeviceTaskSummary, error) {
	return r.db.GetTasksByGroup(ctx, groupName)
}
