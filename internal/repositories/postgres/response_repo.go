package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/calloway-health/consultline/internal/models"
)

type ResponseRepository interface {
	Insert(ctx context.Context, row *models.Response) error
	ListByCall(ctx context.Context, callID uint) ([]models.Response, error)
}

type responseRepo struct {
	db *gorm.DB
}

func NewResponseRepo(db *gorm.DB) ResponseRepository {
	return &responseRepo{db: db}
}

func (r *responseRepo) Insert(ctx context.Context, row *models.Response) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *responseRepo) ListByCall(ctx context.Context, callID uint) ([]models.Response, error) {
	var rows []models.Response
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
