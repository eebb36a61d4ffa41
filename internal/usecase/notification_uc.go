package usecase

import (
	"context"

	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/metrics"
	"vpn-subscription-bot/internal/infra/worker"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

type NotificationUseCase interface {
	// Notify queues a message to one user; kind labels the metric.
	Notify(ctx context.Context, kind string, p adapter.SendMessageParams) error
}

type notificationUC struct {
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	limiter    *rate.Limiter
	log        *zerolog.Logger
}

// NewNotificationUseCase sends through pool when given, otherwise inline.
// perSecond throttles outbound notices below the Telegram broadcast limit.
func NewNotificationUseCase(bot adapter.TelegramBotAdapter, pool *worker.Pool, perSecond float64, logger *zerolog.Logger) *notificationUC {
	if perSecond <= 0 {
		perSecond = 25
	}
	l := logger.With().Str("component", "notification_uc").Logger()
	return &notificationUC{
		bot:        bot,
		workerPool: pool,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		log:        &l,
	}
}

func (n *notificationUC) Notify(ctx context.Context, kind string, p adapter.SendMessageParams) error {
	task := n.createSendTask(kind, p)
	if n.workerPool == nil {
		return task(ctx)
	}
	if err := n.workerPool.SubmitWait(ctx, task); err != nil {
		metrics.IncNotification(kind, "dropped")
		n.log.Warn().Err(err).Int64("tg_id", p.ChatID).Str("kind", kind).Msg("failed to queue notification")
		return err
	}
	return nil
}

// createSendTask creates a closure for the worker pool to execute.
func (n *notificationUC) createSendTask(kind string, p adapter.SendMessageParams) worker.Task {
	return func(ctx context.Context) error {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := n.bot.SendMessage(ctx, p); err != nil {
			// users who blocked the bot land here
			metrics.IncNotification(kind, "failed")
			n.log.Warn().Err(err).Int64("tg_id", p.ChatID).Str("kind", kind).Msg("failed to send notification")
			return nil
		}
		metrics.IncNotification(kind, "sent")
		return nil
	}
}
