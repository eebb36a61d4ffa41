package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/usecase"
)

// DailyClock is a wall-clock time in the operator's timezone.
type DailyClock struct {
	Hour, Minute int
	Loc          *time.Location
}

// ExpiryWorker owns the two daily subscription jobs: the day counter decrement
// and the expiry scan that follows it.
type ExpiryWorker struct {
	uc          usecase.MaintenanceUseCase
	decrementAt DailyClock
	scanAt      DailyClock
	log         *zerolog.Logger
}

func NewExpiryWorker(uc usecase.MaintenanceUseCase, decrementAt, scanAt DailyClock, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{uc: uc, decrementAt: decrementAt, scanAt: scanAt, log: &l}
}

func (w *ExpiryWorker) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:    "decrement_days",
			Trigger: scheduler.Daily{Hour: w.decrementAt.Hour, Minute: w.decrementAt.Minute, Loc: w.decrementAt.Loc},
			Fn:      w.decrement,
		},
		{
			Name:    "expiry_scan",
			Trigger: scheduler.Daily{Hour: w.scanAt.Hour, Minute: w.scanAt.Minute, Loc: w.scanAt.Loc},
			Timeout: 30 * time.Minute,
			Fn:      w.scan,
		},
	}
}

func (w *ExpiryWorker) decrement(ctx context.Context) error {
	_, err := w.uc.DecrementDays(ctx)
	return err
}

func (w *ExpiryWorker) scan(ctx context.Context) error {
	rep, err := w.uc.ScanExpirations(ctx)
	if err != nil {
		return err
	}
	if rep.Expired+rep.Expiring > 0 {
		w.log.Info().Int("expired", rep.Expired).Int("expiring", rep.Expiring).Msg("expiry notices sent")
	}
	return nil
}
