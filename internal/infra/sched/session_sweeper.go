package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/usecase"
)

// SessionSweeper removes purchase sessions whose deadline passed.
type SessionSweeper struct {
	interval time.Duration
	uc       usecase.MaintenanceUseCase
	log      *zerolog.Logger
}

func NewSessionSweeper(interval time.Duration, uc usecase.MaintenanceUseCase, logger *zerolog.Logger) *SessionSweeper {
	l := logger.With().Str("component", "SessionSweeper").Logger()
	return &SessionSweeper{interval: interval, uc: uc, log: &l}
}

func (w *SessionSweeper) Job() scheduler.Job {
	return scheduler.Job{
		Name:    "session_sweep",
		Trigger: scheduler.Every{Interval: w.interval},
		Timeout: w.interval,
		Fn:      w.sweep,
	}
}

func (w *SessionSweeper) sweep(ctx context.Context) error {
	n, err := w.uc.SweepSessions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Debug().Int("count", n).Msg("idle sessions removed")
	}
	return nil
}
