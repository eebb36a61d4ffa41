package telegram

import (
	"context"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/metrics"
	"vpn-subscription-bot/internal/infra/worker"
)

var _ adapter.AlertSink = (*OperatorChannel)(nil)

// OperatorChannel posts operator alerts to a Telegram channel. Alerts are
// sanitized because they embed user-supplied contacts.
type OperatorChannel struct {
	bot       adapter.TelegramBotAdapter
	channelID int64
	pool      *worker.Pool
	limiter   *rate.Limiter
	policy    *bluemonday.Policy
	log       *zerolog.Logger
}

// NewOperatorChannel sends inline when pool is nil. A zero channelID only logs.
func NewOperatorChannel(bot adapter.TelegramBotAdapter, channelID int64, pool *worker.Pool, perSecond float64, logger *zerolog.Logger) *OperatorChannel {
	if perSecond <= 0 {
		perSecond = 1
	}
	l := logger.With().Str("component", "operator_channel").Logger()
	return &OperatorChannel{
		bot:       bot,
		channelID: channelID,
		pool:      pool,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 3),
		policy:    bluemonday.StrictPolicy(),
		log:       &l,
	}
}

// Alert never blocks the caller on delivery and never fails it.
func (o *OperatorChannel) Alert(ctx context.Context, text string) {
	if o.channelID == 0 {
		o.log.Warn().Str("alert", text).Msg("operator channel not configured")
		return
	}
	task := o.sendTask(o.policy.Sanitize(text))
	if o.pool == nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = task(ctx)
		return
	}
	if err := o.pool.Submit(task); err != nil {
		metrics.IncNotification("operator", "dropped")
		o.log.Error().Err(err).Str("alert", text).Msg("failed to queue operator alert")
	}
}

func (o *OperatorChannel) sendTask(text string) worker.Task {
	return func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := o.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: o.channelID, Text: text, ParseMode: "HTML"})
		if err != nil {
			metrics.IncNotification("operator", "failed")
			o.log.Error().Err(err).Str("alert", text).Msg("failed to post operator alert")
			return nil
		}
		metrics.IncNotification("operator", "sent")
		return nil
	}
}
