package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calloway-health/consultline/internal/providers/notify"
	pgrepo "github.com/calloway-health/consultline/internal/repositories/postgres"
	"github.com/calloway-health/consultline/internal/utils"
)

// ReminderWindow is how far ahead the sweep looks for unsent reminders.
const ReminderWindow = time.Hour

type ReminderService interface {
	// Sweep sends reminders for appointments due within the window and marks
	// them sent. Per-appointment failures are logged and skipped; the sweep
	// itself only errors when the due-appointment query fails.
	Sweep(ctx context.Context) (sent int, err error)
}

type reminderService struct {
	appointments pgrepo.AppointmentRepository
	sender       notify.Sender
	log          *logrus.Logger
	now          func() time.Time
}

func NewReminderService(appointments pgrepo.AppointmentRepository, sender notify.Sender, log *logrus.Logger) ReminderService {
	return &reminderService{appointments: appointments, sender: sender, log: log, now: time.Now}
}

func NewReminderServiceWithClock(appointments pgrepo.AppointmentRepository, sender notify.Sender, log *logrus.Logger, now func() time.Time) ReminderService {
	return &reminderService{appointments: appointments, sender: sender, log: log, now: now}
}

func (s *reminderService) Sweep(ctx context.Context) (int, error) {
	const op = "ReminderService.Sweep"

	cutoff := s.now().UTC().Add(ReminderWindow)
	due, err := s.appointments.DueBefore(ctx, cutoff)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to query due appointments", err)
	}
	if len(due) == 0 {
		s.log.Debug("no upcoming appointments to remind")
		return 0, nil
	}

	sent := 0
	for _, appt := range due {
		log := s.log.WithFields(logrus.Fields{
			"appointment_id":   appt.ID,
			"patient_id":       appt.PatientID,
			"appointment_time": appt.AppointmentTime,
		})

		msgID, err := s.sender.SendReminder(ctx, appt.PhoneNumber, appt.AppointmentTime)
		if err != nil {
			log.WithError(err).Error("failed to send reminder")
			continue
		}
		if err := s.appointments.MarkReminderSent(ctx, appt.ID); err != nil {
			// the SMS went out; an unsent flag means one duplicate next sweep
			log.WithError(err).Error("failed to mark reminder as sent")
			continue
		}
		log.WithField("message_id", msgID).Info("reminder sent")
		sent++
	}
	return sent, nil
}
