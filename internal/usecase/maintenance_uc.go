package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/i18n"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ MaintenanceUseCase = (*maintenanceUC)(nil)

const (
	expiringThresholdDays = 3
	reminderBatch         = 100
)

type ExpiryReport struct {
	Expired  int
	Expiring int
	Disabled int
}

// MaintenanceUseCase holds the periodic jobs.
type MaintenanceUseCase interface {
	DecrementDays(ctx context.Context) (int64, error)
	ScanExpirations(ctx context.Context) (*ExpiryReport, error)
	DeliverDueReminders(ctx context.Context) (int, error)
	SweepSessions(ctx context.Context) (int, error)
}

type maintenanceUC struct {
	users     repository.UserRepository
	configs   repository.VpnConfigRepository
	sessions  repository.SessionRepository
	reminders repository.ReminderQueue
	files     adapter.FileRepository
	vpn       adapter.VPNServer
	notifier  NotificationUseCase
	alerts    adapter.AlertSink
	bot       adapter.TelegramBotAdapter
	t         *i18n.Translator
	now       func() time.Time
	log       *zerolog.Logger
}

// NewMaintenanceUseCase accepts a nil vpn when no VPN server API is configured.
func NewMaintenanceUseCase(
	users repository.UserRepository,
	configs repository.VpnConfigRepository,
	sessions repository.SessionRepository,
	reminders repository.ReminderQueue,
	files adapter.FileRepository,
	vpn adapter.VPNServer,
	notifier NotificationUseCase,
	alerts adapter.AlertSink,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	logger *zerolog.Logger,
) *maintenanceUC {
	l := logger.With().Str("component", "maintenance_uc").Logger()
	return &maintenanceUC{
		users:     users,
		configs:   configs,
		sessions:  sessions,
		reminders: reminders,
		files:     files,
		vpn:       vpn,
		notifier:  notifier,
		alerts:    alerts,
		bot:       bot,
		t:         translator,
		now:       time.Now,
		log:       &l,
	}
}

func (m *maintenanceUC) DecrementDays(ctx context.Context) (int64, error) {
	defer logging.TraceDuration(m.log, "MaintenanceUC.DecrementDays")()
	n, err := m.users.DecrementSubscriptionDays(ctx, repository.NoTX)
	if err != nil {
		return 0, fmt.Errorf("decrement subscription days: %w", err)
	}
	m.log.Info().Int64("users", n).Msg("subscription days decremented")
	return n, nil
}

func (m *maintenanceUC) renewMarkup(configID int64) *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{Inline: [][]adapter.InlineButton{
		{{Text: m.t.T("btn.renew"), Data: fmt.Sprintf("renew_%d", configID)}},
		{{Text: m.t.T("btn.back"), Data: "account"}},
	}}
}

// ScanExpirations notifies owners of configurations past their expiry date.
// Owners without days left are reported to the operator, get a follow-up
// reminder and lose the peer on the VPN server.
func (m *maintenanceUC) ScanExpirations(ctx context.Context) (*ExpiryReport, error) {
	defer logging.TraceDuration(m.log, "MaintenanceUC.ScanExpirations")()
	now := m.now()
	expired, err := m.configs.FindExpired(ctx, repository.NoTX, model.TruncateDay(now))
	if err != nil {
		return nil, fmt.Errorf("find expired configs: %w", err)
	}

	rep := &ExpiryReport{}
	for _, cfg := range expired {
		if cfg.UserID == nil {
			continue
		}
		owner, err := m.users.FindByTelegramID(ctx, repository.NoTX, *cfg.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				m.log.Warn().Int64("config_id", cfg.ID).Msg("expired config without owner row")
				continue
			}
			return rep, err
		}

		switch {
		case owner.SubscribeDaysLeft == 0:
			rep.Expired++
			phone := "-"
			if owner.Phone != nil {
				phone = *owner.Phone
			}
			m.alerts.Alert(ctx, m.t.T("alert.expired", owner.TelegramID, phone, m.files.ViewLink(cfg.FileID)))
			_ = m.notifier.Notify(ctx, "expired", adapter.SendMessageParams{
				ChatID:      owner.TelegramID,
				Text:        m.t.T("msg.expired_user", cfg.Label()),
				ReplyMarkup: m.renewMarkup(cfg.ID),
			})
			err := m.reminders.Schedule(ctx, &model.Reminder{
				UserID:   owner.TelegramID,
				ConfigID: cfg.ID,
				DueAt:    now.Add(model.FollowUpDelay),
			})
			if err != nil {
				m.log.Error().Err(err).Int64("tg_id", owner.TelegramID).Msg("failed to schedule follow-up")
			}
			if m.vpn != nil {
				if err := m.vpn.DisableClient(ctx, cfg.PeerName()); err != nil {
					m.log.Error().Err(err).Str("peer", cfg.PeerName()).Msg("failed to disable peer")
					m.alerts.Alert(ctx, m.t.T("alert.disable_failed", cfg.PeerName(), owner.TelegramID, err.Error()))
				} else {
					rep.Disabled++
				}
			}
		case owner.SubscribeDaysLeft < expiringThresholdDays:
			rep.Expiring++
			m.alerts.Alert(ctx, m.t.T("alert.expiring", owner.TelegramID))
			_ = m.notifier.Notify(ctx, "expiring", adapter.SendMessageParams{
				ChatID:      owner.TelegramID,
				Text:        m.t.T("msg.expiring_user", cfg.Label()),
				ReplyMarkup: m.renewMarkup(cfg.ID),
			})
		}
	}
	m.log.Info().Int("expired", rep.Expired).Int("expiring", rep.Expiring).Int("disabled", rep.Disabled).Msg("expiry scan finished")
	return rep, nil
}

func (m *maintenanceUC) DeliverDueReminders(ctx context.Context) (int, error) {
	due, err := m.reminders.PopDue(ctx, m.now(), reminderBatch)
	if err != nil {
		return 0, err
	}
	for _, r := range due {
		_ = m.notifier.Notify(ctx, "follow_up", adapter.SendMessageParams{
			ChatID:      r.UserID,
			Text:        m.t.T("msg.final_reminder"),
			ReplyMarkup: m.renewMarkup(r.ConfigID),
		})
	}
	if len(due) > 0 {
		m.log.Info().Int("count", len(due)).Msg("follow-up reminders delivered")
	}
	return len(due), nil
}

// SweepSessions drops idle purchase sessions and their prompts. Invoices stay:
// a user may still complete a payment started before the timeout.
func (m *maintenanceUC) SweepSessions(ctx context.Context) (int, error) {
	stale, err := m.sessions.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	for _, s := range stale {
		if len(s.MessageIDs) > 0 {
			if err := m.bot.DeleteMessages(ctx, s.UserID, s.MessageIDs); err != nil {
				m.log.Debug().Err(err).Int64("tg_id", s.UserID).Msg("failed to delete flow messages")
			}
		}
	}
	metrics.AddSessionsSwept(len(stale))
	return len(stale), nil
}
