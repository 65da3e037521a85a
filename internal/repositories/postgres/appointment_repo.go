package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/calloway-health/consultline/internal/models"
)

type AppointmentRepository interface {
	// DueBefore returns unsent-reminder appointments scheduled before the
	// given cutoff, joined with the patient's phone number.
	DueBefore(ctx context.Context, cutoff time.Time) ([]models.DueAppointment, error)
	MarkReminderSent(ctx context.Context, id uint) error
}

type appointmentRepo struct {
	db *gorm.DB
}

func NewAppointmentRepo(db *gorm.DB) AppointmentRepository {
	return &appointmentRepo{db: db}
}

func (r *appointmentRepo) DueBefore(ctx context.Context, cutoff time.Time) ([]models.DueAppointment, error) {
	var rows []models.DueAppointment
	err := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Select("appointments.id, appointments.patient_id, appointments.appointment_time, patients.phone_number").
		Joins("JOIN patients ON patients.id = appointments.patient_id").
		Where("appointments.reminder_sent = ? AND appointments.appointment_time <= ?", false, cutoff).
		Scan(&rows).Error
	return rows, err
}

func (r *appointmentRepo) MarkReminderSent(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reminder_sent": true,
			"updated_at":    time.Now().UTC(),
		}).Error
}
