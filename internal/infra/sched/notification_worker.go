package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/usecase"
)

// NotificationWorker delivers queued follow-up reminders.
type NotificationWorker struct {
	interval time.Duration
	uc       usecase.MaintenanceUseCase
	log      *zerolog.Logger
}

func NewNotificationWorker(interval time.Duration, uc usecase.MaintenanceUseCase, logger *zerolog.Logger) *NotificationWorker {
	compLog := logger.With().Str("component", "NotificationWorker").Logger()
	return &NotificationWorker{interval: interval, uc: uc, log: &compLog}
}

func (w *NotificationWorker) Job() scheduler.Job {
	return scheduler.Job{
		Name:       "follow_up_reminders",
		Trigger:    scheduler.Every{Interval: w.interval},
		RunAtStart: true,
		Timeout:    w.interval,
		Fn:         w.runCheck,
	}
}

func (w *NotificationWorker) runCheck(ctx context.Context) error {
	sent, err := w.uc.DeliverDueReminders(ctx)
	if err != nil {
		return err
	}
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("follow-up reminders sent")
	}
	return nil
}
