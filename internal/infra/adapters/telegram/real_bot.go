package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/application"
	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/i18n"
	"vpn-subscription-bot/internal/infra/metrics"
	red "vpn-subscription-bot/internal/infra/redis"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

const (
	messageRateLimit  = 20
	callbackRateLimit = 30
	rateWindow        = time.Minute
)

// Client is the part of tgbotapi.BotAPI used for outgoing calls.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RealTelegramBotAdapter polls updates with a pool of workers and delegates
// them to the BotFacade. Actions of one user are serialized by a Redis lock.
type RealTelegramBotAdapter struct {
	api         *tgbotapi.BotAPI
	client      Client
	cfg         *config.BotConfig
	facade      *application.BotFacade
	locker      repository.Locker
	rateLimiter *red.RateLimiter
	translator  *i18n.Translator
	lockTTL     time.Duration

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
	log           *zerolog.Logger
}

// NewRealTelegramBotAdapter connects to the Bot API. The facade is attached
// later with SetFacade because it sends through this adapter.
func NewRealTelegramBotAdapter(
	cfg *config.BotConfig,
	locker repository.Locker,
	rateLimiter *red.RateLimiter,
	translator *i18n.Translator,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	r := newAdapter(api, cfg, locker, rateLimiter, translator, lockTTL, logger)
	r.api = api
	return r, nil
}

func newAdapter(
	client Client,
	cfg *config.BotConfig,
	locker repository.Locker,
	rateLimiter *red.RateLimiter,
	translator *i18n.Translator,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *RealTelegramBotAdapter {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	adminMap := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	l := logger.With().Str("component", "telegram_bot").Logger()
	return &RealTelegramBotAdapter{
		client:        client,
		cfg:           cfg,
		locker:        locker,
		rateLimiter:   rateLimiter,
		translator:    translator,
		lockTTL:       lockTTL,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
		log:           &l,
	}
}

func (r *RealTelegramBotAdapter) SetFacade(f *application.BotFacade) { r.facade = f }

// Send passes a raw Bot API request through, for components that build their own payloads such as invoices.
func (r *RealTelegramBotAdapter) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return r.client.Send(c)
}

// StartPolling runs until ctx is canceled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade is not attached")
	}
	if r.api == nil {
		return errors.New("polling requires a Bot API connection")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := r.handleUpdate(ctx, update); err != nil {
						r.log.Error().Err(err).Int("worker", workerID).Int("update_id", update.UpdateID).Msg("failed to handle update")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	<-ctx.Done()
	r.api.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// ---- outbound port ----

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(p.ChatID, p.Text)
	msg.ParseMode = p.ParseMode
	if m := toTelegramMarkup(p.ReplyMarkup); m != nil {
		msg.ReplyMarkup = m
	}
	sent, err := r.client.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", p.ChatID, err)
	}
	return sent.MessageID, nil
}

func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	return r.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:      telegramID,
		Text:        text,
		ReplyMarkup: &adapter.ReplyMarkup{Inline: rows},
	})
}

func (r *RealTelegramBotAdapter) SendDocument(ctx context.Context, p adapter.SendDocumentParams) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doc := tgbotapi.NewDocument(p.ChatID, tgbotapi.FileReader{Name: p.FileName, Reader: p.Reader})
	doc.Caption = p.Caption
	if m := toTelegramMarkup(p.ReplyMarkup); m != nil {
		doc.ReplyMarkup = m
	}
	sent, err := r.client.Send(doc)
	if err != nil {
		return 0, fmt.Errorf("send document to %d: %w", p.ChatID, err)
	}
	return sent.MessageID, nil
}

func (r *RealTelegramBotAdapter) SendPhoto(ctx context.Context, p adapter.SendPhotoParams) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	photo := tgbotapi.NewPhoto(p.ChatID, tgbotapi.FileURL(p.URL))
	photo.Caption = p.Caption
	photo.ParseMode = p.ParseMode
	if m := toTelegramMarkup(p.ReplyMarkup); m != nil {
		photo.ReplyMarkup = m
	}
	sent, err := r.client.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("send photo to %d: %w", p.ChatID, err)
	}
	return sent.MessageID, nil
}

// DeleteMessages tries every id and returns the first failure.
func (r *RealTelegramBotAdapter) DeleteMessages(ctx context.Context, chatID int64, ids []int) error {
	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.client.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete message %d: %w", id, err)
		}
	}
	return firstErr
}

// toTelegramMarkup converts the port markup. Buttons without data fall back to their text.
func toTelegramMarkup(m *adapter.ReplyMarkup) interface{} {
	switch {
	case m == nil:
		return nil
	case m.Remove:
		return tgbotapi.NewRemoveKeyboard(true)
	case len(m.Reply) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(m.Reply))
		for _, row := range m.Reply {
			kr := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, b := range row {
				if b.RequestContact {
					kr = append(kr, tgbotapi.NewKeyboardButtonContact(b.Text))
				} else {
					kr = append(kr, tgbotapi.NewKeyboardButton(b.Text))
				}
			}
			rows = append(rows, kr)
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.OneTimeKeyboard = true
		kb.ResizeKeyboard = true
		return kb
	case len(m.Inline) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.Inline))
		for _, row := range m.Inline {
			if len(row) == 0 {
				continue
			}
			kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, btn := range row {
				label := strings.TrimSpace(btn.Text)
				if label == "" {
					label = "•"
				}
				switch {
				case btn.URL != "":
					kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
				case btn.Data != "":
					kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
				default:
					kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
				}
			}
			rows = append(rows, kr)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return nil
}

// SetMenuCommands installs the command list for one chat; admins also see operator commands.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Главное меню"},
		{Command: "help", Description: "Поддержка"},
	}
	if isAdmin {
		commands = append(commands,
			tgbotapi.BotCommand{Command: "stats", Description: "Статистика"},
			tgbotapi.BotCommand{Command: "sync", Description: "Загрузить новые конфигурации"},
		)
	}
	_, err := r.client.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(chatID), commands...))
	return err
}

// ---- inbound ----

func updateUserID(u tgbotapi.Update) int64 {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID
	}
	return 0
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	// Telegram expects the pre-checkout answer within seconds, so it skips the user lock.
	if update.PreCheckoutQuery != nil {
		return r.handlePreCheckout(ctx, update.PreCheckoutQuery)
	}

	// The charge has already happened; it must reach fulfilment whatever the user is doing.
	if update.Message != nil && update.Message.SuccessfulPayment != nil {
		return r.handleMessage(ctx, update.Message)
	}

	userID := updateUserID(update)
	if userID == 0 {
		return nil
	}

	if !r.allow(ctx, userID, update) {
		metrics.IncRateLimitTriggered()
		return r.reject(ctx, userID, update, r.translator.T("msg.rate_limited"))
	}

	if r.locker != nil {
		key := red.UserLockKey(userID)
		token, ok, err := r.locker.TryLock(ctx, key, r.lockTTL)
		if err != nil {
			r.log.Warn().Err(err).Int64("tg_id", userID).Msg("user lock unavailable, handling without it")
		} else if !ok {
			metrics.IncUserLockBusy()
			return r.reject(ctx, userID, update, r.translator.T("msg.busy"))
		} else {
			defer func() {
				if err := r.locker.Unlock(context.Background(), key, token); err != nil {
					r.log.Warn().Err(err).Int64("tg_id", userID).Msg("failed to release user lock")
				}
			}()
		}
	}

	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	if update.Message != nil {
		return r.handleMessage(ctx, update.Message)
	}
	return nil
}

func (r *RealTelegramBotAdapter) allow(ctx context.Context, userID int64, update tgbotapi.Update) bool {
	if r.rateLimiter == nil {
		return true
	}
	action, limit := "message", messageRateLimit
	if update.CallbackQuery != nil {
		action, limit = "callback", callbackRateLimit
	}
	ok, err := r.rateLimiter.Allow(ctx, red.UserActionKey(userID, action), limit, rateWindow)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate limiter error")
		return true
	}
	return ok
}

// reject answers a dropped update without touching the purchase flow.
func (r *RealTelegramBotAdapter) reject(ctx context.Context, userID int64, update tgbotapi.Update, text string) error {
	if q := update.CallbackQuery; q != nil {
		_, err := r.client.Request(tgbotapi.NewCallback(q.ID, text))
		return err
	}
	_, err := r.SendMessage(ctx, adapter.SendMessageParams{ChatID: userID, Text: text})
	return err
}
