package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/calloway-health/consultline/internal/models"
	"github.com/calloway-health/consultline/internal/utils"
)

type PatientRepository interface {
	GetByPhone(ctx context.Context, phone string) (*models.Patient, error)
	GetByID(ctx context.Context, id uint) (*models.Patient, error)
}

type patientRepo struct {
	db *gorm.DB
}

func NewPatientRepo(db *gorm.DB) PatientRepository {
	return &patientRepo{db: db}
}

func (r *patientRepo) GetByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	var row models.Patient
	err := r.db.WithContext(ctx).Where("phone_number = ?", phone).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *patientRepo) GetByID(ctx context.Context, id uint) (*models.Patient, error) {
	var row models.Patient
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
