package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"menu":  r.handleMenuCommand,
		"help":  r.handleHelpCommand,

		"stats": r.adminOnly(r.handleStatsCommand),
		"sync":  r.adminOnly(r.handleSyncCommand),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if _, isAdmin := r.adminIDsMap[message.From.ID]; !isAdmin {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			_, err := r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.translator.T("admin.unauthorized")})
			return err
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

// handleMessage dispatches commands, payments, shared contacts and free text.
func (r *RealTelegramBotAdapter) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		return nil
	}
	switch {
	case message.SuccessfulPayment != nil:
		metrics.IncTelegramCommand("successful_payment")
		return r.handleSuccessfulPayment(ctx, message)
	case message.Contact != nil:
		metrics.IncTelegramCommand("contact")
		return r.facade.HandleContact(ctx, message.From.ID, message.MessageID, message.Contact.PhoneNumber)
	case message.IsCommand():
		fn, ok := r.commandRoutes()[message.Command()]
		if !ok {
			metrics.IncTelegramCommand("unknown")
			return r.facade.MainMenu(ctx, message.From.ID)
		}
		metrics.IncTelegramCommand("/" + message.Command())
		return fn(ctx, message)
	case strings.TrimSpace(message.Text) != "":
		metrics.IncTelegramCommand("message")
		return r.facade.HandleText(ctx, message.From.ID, message.MessageID, message.Text)
	}
	return nil
}

// handleStartCommand handles /start [referrer id].
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	_, isAdmin := r.adminIDsMap[message.From.ID]
	if err := r.SetMenuCommands(ctx, message.Chat.ID, isAdmin); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", message.From.ID).Msg("failed to set dynamic menu commands")
	}
	return r.facade.Start(ctx,
		message.From.ID,
		message.From.UserName,
		message.From.FirstName,
		strings.TrimSpace(message.CommandArguments()),
	)
}

func (r *RealTelegramBotAdapter) handleMenuCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.MainMenu(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.ShowHelp(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.AdminStats(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) handleSyncCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.AdminSync(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	metrics.IncTelegramCommand("pre_checkout")
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if q.From == nil {
		answer.OK = false
		answer.ErrorMessage = r.translator.T("msg.no_invoice")
	} else if err := r.facade.PreCheckout(ctx, q.From.ID, q.InvoicePayload, int64(q.TotalAmount)); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", q.From.ID).Msg("pre-checkout rejected")
		answer.OK = false
		answer.ErrorMessage = r.facade.ErrorText(err)
	}
	_, err := r.client.Request(answer)
	return err
}

func (r *RealTelegramBotAdapter) handleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) error {
	sp := message.SuccessfulPayment
	return r.facade.PaymentSucceeded(ctx, model.PaymentConfirmation{
		UserID:         message.From.ID,
		ChatID:         message.Chat.ID,
		Payload:        sp.InvoicePayload,
		TotalAmount:    int64(sp.TotalAmount),
		Currency:       sp.Currency,
		ProviderCharge: sp.ProviderPaymentChargeID,
		TelegramCharge: sp.TelegramPaymentChargeID,
	})
}
