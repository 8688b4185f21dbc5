package repository

import (
	"context"

	"github.com/imyashkale/deviceserver/internal/database"
	"github.com/imyashkale/deviceserver/internal/models"
)

// TemplateRepository defines the interface for configuration templates
type TemplateRepository interface {
	Get(ctx context.Context, name string, versionNo int) (*models.TemplateItem, error)
}

// dynamoTemplateRepository implements TemplateRepository using DynamoDB
type dynamoTemplateRepository struct {
	db *database.TemplateOperations
}

// NewTemplateRepository creates a new DynamoDB-backed template repository
func NewTemplateRepository(db *database.TemplateOperations) TemplateRepository {
	return &dynamoTemplateRepository{
		db: db,
	}
}

// Get retrieves a template by name and version number
func (r *dynamoTemplateRepository) Get(ctx context.Context, name string, versionNo int) (*models.TemplateItem, error) {
	return r.db.GetTemplate(ctx, name, versionNo)
}
