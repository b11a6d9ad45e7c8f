package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
)

// CatalogRepo is the dataset store for satellites_main and satellites_stage
type CatalogRepo interface {
	DeleteAll(ctx context.Context, dataset models.Dataset) (int64, error)
	BulkInsert(ctx context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error)
	Exists(ctx context.Context, dataset models.Dataset, externalID int64) (bool, error)
	Get(ctx context.Context, dataset models.Dataset, externalID int64) (*models.CatalogEntry, error)
	List(ctx context.Context, dataset models.Dataset) ([]models.CatalogEntry, error)
	Count(ctx context.Context, dataset models.Dataset) (int, error)
	Insert(ctx context.Context, dataset models.Dataset, entry *models.CatalogEntry) (bool, error)
	UpdateValidation(ctx context.Context, dataset models.Dataset, externalID int64, active bool, validatedAt time.Time) error
	Replace(ctx context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error)
}

// ApprovalRepo stores approval requests
type ApprovalRepo interface {
	Create(ctx context.Context, request *models.ApprovalRequest) error
	GetByToken(ctx context.Context, token string) (*models.ApprovalRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	Approve(ctx context.Context, token string, at time.Time) (*models.ApprovalRequest, error)
	Expire(ctx context.Context, token string, at time.Time) (*models.ApprovalRequest, error)
	Consume(ctx context.Context, token string, at time.Time) (bool, error)
}
