package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/usecase"
)

// ConfigFeed pulls new configuration files from the remote folder, once at
// startup and then on every interval.
type ConfigFeed struct {
	interval time.Duration
	uc       usecase.ProvisioningUseCase
	log      *zerolog.Logger
}

func NewConfigFeed(interval time.Duration, uc usecase.ProvisioningUseCase, logger *zerolog.Logger) *ConfigFeed {
	l := logger.With().Str("component", "ConfigFeed").Logger()
	return &ConfigFeed{interval: interval, uc: uc, log: &l}
}

func (w *ConfigFeed) Job() scheduler.Job {
	return scheduler.Job{
		Name:       "config_feed",
		Trigger:    scheduler.Every{Interval: w.interval},
		RunAtStart: true,
		Timeout:    w.interval,
		Fn:         w.sync,
	}
}

func (w *ConfigFeed) sync(ctx context.Context) error {
	res, err := w.uc.Sync(ctx)
	if err != nil {
		return err
	}
	if res.Added > 0 || res.Failed > 0 {
		w.log.Info().Int("added", res.Added).Int("failed", res.Failed).Int("free", res.Free).Msg("config feed synced")
	}
	return nil
}
