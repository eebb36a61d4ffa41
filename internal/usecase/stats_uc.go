package usecase

import (
	"context"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Totals(ctx context.Context) (*model.Stats, error)
}

type statsUC struct {
	users    repository.UserRepository
	configs  repository.VpnConfigRepository
	invoices repository.InvoiceRepository

	log *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, configs repository.VpnConfigRepository, invoices repository.InvoiceRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, configs: configs, invoices: invoices, log: logger}
}

func (s *statsUC) Totals(ctx context.Context) (*model.Stats, error) {
	users, err := s.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	free, err := s.configs.CountFree(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	assigned, err := s.configs.CountAssigned(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	live, err := s.invoices.CountInvoices(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	metrics.SetFreeConfigs(free)
	return &model.Stats{Users: users, FreeConfigs: free, AssignedConfigs: assigned, LiveInvoices: live}, nil
}
