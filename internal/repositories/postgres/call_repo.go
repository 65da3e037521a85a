package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/calloway-health/consultline/internal/models"
	"github.com/calloway-health/consultline/internal/utils"
)

type CallRepository interface {
	Insert(ctx context.Context, call *models.Call) error
	Finalize(ctx context.Context, id uint, end time.Time, durationSeconds int64) error
	GetByID(ctx context.Context, id uint) (*models.Call, error)
	GetBySID(ctx context.Context, callSID string) (*models.Call, error)
	LatestByPatient(ctx context.Context, patientID uint) (*models.Call, error)
}

type callRepo struct {
	db *gorm.DB
}

func NewCallRepo(db *gorm.DB) CallRepository {
	return &callRepo{db: db}
}

func (r *callRepo) Insert(ctx context.Context, call *models.Call) error {
	return r.db.WithContext(ctx).Create(call).Error
}

// Finalize writes the end timestamp and duration. It is the only update the
// calls table ever sees.
func (r *callRepo) Finalize(ctx context.Context, id uint, end time.Time, durationSeconds int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Call{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"call_end":      end,
			"call_duration": durationSeconds,
		}).Error
}

func (r *callRepo) GetByID(ctx context.Context, id uint) (*models.Call, error) {
	var row models.Call
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *callRepo) GetBySID(ctx context.Context, callSID string) (*models.Call, error) {
	var row models.Call
	err := r.db.WithContext(ctx).Where("call_sid = ?", callSID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *callRepo) LatestByPatient(ctx context.Context, patientID uint) (*models.Call, error) {
	var row models.Call
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("call_start DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
