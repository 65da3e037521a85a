package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calloway-health/consultline/internal/services"
)

// ReminderWorker runs the appointment-reminder sweep on a fixed interval.
// It shares the persistence pool with everything else and is entirely
// independent of call orchestration.
type ReminderWorker struct {
	Service  services.ReminderService
	Interval time.Duration
	Logger   *logrus.Logger
}

func (w *ReminderWorker) Start(ctx context.Context) error {
	if w.Service == nil {
		return errors.New("ReminderWorker missing dependency: Service must be set")
	}
	if w.Interval <= 0 {
		w.Interval = 10 * time.Minute
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}

	go w.run(ctx)
	return nil
}

func (w *ReminderWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.Logger.WithField("interval", w.Interval.String()).Info("reminder worker started")

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			sent, err := w.Service.Sweep(ctx)
			if err != nil {
				w.Logger.WithError(err).Error("reminder sweep failed")
				continue
			}
			if sent > 0 {
				w.Logger.WithField("sent", sent).Info("reminder sweep finished")
			}
		}
	}
}
