package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/i18n"
	"vpn-subscription-bot/internal/usecase"

	"github.com/rs/zerolog"
)

const (
	defaultReferralNoticeTTL = 120 * time.Second
	dateLayout               = "02.01.2006"
	parseModeHTML            = "HTML"
)

type FacadeOptions struct {
	SupportURL string
	AdminIDs   []int64
	// ReferralNoticeTTL is how long the "your link was used" notice stays in the referrer's chat.
	ReferralNoticeTTL time.Duration
}

// BotFacade composes usecases into chat screens. Each handler renders its
// replies through the bot adapter so the Telegram routes only parse updates.
type BotFacade struct {
	Users        usecase.UserUseCase
	Purchase     usecase.PurchaseUseCase
	Delivery     usecase.DeliveryUseCase
	Help         usecase.HelpUseCase
	Stats        usecase.StatsUseCase
	Provisioning usecase.ProvisioningUseCase

	bot    adapter.TelegramBotAdapter
	t      *i18n.Translator
	kb     keyboards
	admins map[int64]struct{}
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewBotFacade(
	users usecase.UserUseCase,
	purchase usecase.PurchaseUseCase,
	delivery usecase.DeliveryUseCase,
	help usecase.HelpUseCase,
	stats usecase.StatsUseCase,
	provisioning usecase.ProvisioningUseCase,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	opts FacadeOptions,
	logger *zerolog.Logger,
) *BotFacade {
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	if opts.ReferralNoticeTTL <= 0 {
		opts.ReferralNoticeTTL = defaultReferralNoticeTTL
	}
	l := logger.With().Str("component", "bot_facade").Logger()
	return &BotFacade{
		Users:        users,
		Purchase:     purchase,
		Delivery:     delivery,
		Help:         help,
		Stats:        stats,
		Provisioning: provisioning,
		bot:          bot,
		t:            translator,
		kb:           keyboards{t: translator, supportURL: opts.SupportURL},
		admins:       admins,
		ttl:          opts.ReferralNoticeTTL,
		log:          &l,
	}
}

// reply is one outgoing chat message. Track marks it as part of the purchase flow.
type reply struct {
	text      string
	parseMode string
	markup    *adapter.ReplyMarkup
	track     bool
}

func (b *BotFacade) send(ctx context.Context, chatID int64, r reply) (int, error) {
	id, err := b.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:      chatID,
		Text:        r.text,
		ParseMode:   r.parseMode,
		ReplyMarkup: r.markup,
	})
	if err != nil {
		return 0, err
	}
	if r.track {
		if err := b.Purchase.TrackMessages(ctx, chatID, id); err != nil {
			b.log.Debug().Err(err).Int64("tg_id", chatID).Msg("failed to track flow message")
		}
	}
	return id, nil
}

// ErrorText maps a flow error to the message shown to the user.
func (b *BotFacade) ErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return b.t.T("msg.session_expired")
	case errors.Is(err, domain.ErrUnexpectedStep):
		return b.t.T("msg.unexpected_step")
	case errors.Is(err, domain.ErrNotOwner):
		return b.t.T("msg.not_owner")
	case errors.Is(err, domain.ErrNoFreeConfigs):
		return b.t.T("msg.no_configs")
	case errors.Is(err, domain.ErrInvalidPhone):
		return b.t.T("msg.invalid_phone")
	case errors.Is(err, domain.ErrInvalidEmail):
		return b.t.T("msg.invalid_email")
	case errors.Is(err, domain.ErrInvalidQuantity):
		return b.t.T("msg.invalid_quantity")
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrNotFound):
		return b.t.T("msg.no_invoice")
	case errors.Is(err, domain.ErrUserLocked):
		return b.t.T("msg.busy")
	default:
		return b.t.T("msg.error")
	}
}

// isUserError reports errors caused by user input rather than a failure.
func isUserError(err error) bool {
	for _, target := range []error{
		domain.ErrSessionExpired, domain.ErrUnexpectedStep, domain.ErrNotOwner,
		domain.ErrNoFreeConfigs, domain.ErrInvalidPhone, domain.ErrInvalidEmail,
		domain.ErrInvalidQuantity, domain.ErrInvalidPayload, domain.ErrNotFound,
		domain.ErrInvalidDevice,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// fail tells the user what went wrong. Only unexpected errors are returned.
func (b *BotFacade) fail(ctx context.Context, chatID int64, err error) error {
	markup := b.kb.mainMenu()
	if errors.Is(err, domain.ErrInvalidPhone) || errors.Is(err, domain.ErrInvalidEmail) || errors.Is(err, domain.ErrInvalidQuantity) {
		markup = nil
	}
	if _, sendErr := b.send(ctx, chatID, reply{text: b.ErrorText(err), markup: markup, track: markup == nil}); sendErr != nil {
		b.log.Warn().Err(sendErr).Int64("tg_id", chatID).Msg("failed to send error reply")
	}
	if isUserError(err) {
		return nil
	}
	return err
}

func (b *BotFacade) cleanup(ctx context.Context, chatID int64, ids []int) {
	if len(ids) == 0 {
		return
	}
	if err := b.bot.DeleteMessages(ctx, chatID, ids); err != nil {
		b.log.Debug().Err(err).Int64("tg_id", chatID).Msg("failed to delete flow messages")
	}
}

// Start handles /start: drops any unfinished purchase, registers the user,
// applies the referral token and shows the main menu.
func (b *BotFacade) Start(ctx context.Context, tgID int64, username, displayName, refToken string) error {
	ids, err := b.Purchase.Reset(ctx, tgID)
	if err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("failed to reset purchase flow")
	}
	b.cleanup(ctx, tgID, ids)

	res, err := b.Users.RegisterOrFetch(ctx, tgID, username, refToken)
	if err != nil {
		return b.fail(ctx, tgID, fmt.Errorf("register user: %w", err))
	}

	switch res.Referral {
	case usecase.ReferralSelf:
		_, _ = b.send(ctx, tgID, reply{text: b.t.T("msg.self_referral"), parseMode: parseModeHTML})
	case usecase.ReferralAlreadySet:
		_, _ = b.send(ctx, tgID, reply{text: b.t.T("msg.referral_already")})
	case usecase.ReferralApplied:
		if res.User.ReferrerID != nil {
			b.notifyReferrer(ctx, *res.User.ReferrerID)
		}
	}

	name := displayName
	if name == "" {
		name = username
	}
	_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.welcome", name), markup: b.kb.start()})
	return err
}

// notifyReferrer posts a short-lived notice to the owner of the referral link.
func (b *BotFacade) notifyReferrer(ctx context.Context, referrerID int64) {
	id, err := b.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: referrerID, Text: b.t.T("msg.referral_used")})
	if err != nil {
		b.log.Warn().Err(err).Int64("referrer", referrerID).Msg("failed to notify referrer")
		return
	}
	time.AfterFunc(b.ttl, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = b.bot.DeleteMessages(ctx, referrerID, []int{id})
	})
}

func (b *BotFacade) MainMenu(ctx context.Context, tgID int64) error {
	ids, err := b.Purchase.Reset(ctx, tgID)
	if err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("failed to reset purchase flow")
	}
	b.cleanup(ctx, tgID, ids)
	_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.main_menu"), markup: b.kb.start()})
	return err
}

// ConnectVPN opens the device menu when a free configuration exists.
func (b *BotFacade) ConnectVPN(ctx context.Context, tgID int64) error {
	if _, err := b.Purchase.CheckAvailability(ctx); err != nil {
		return b.fail(ctx, tgID, err)
	}
	_, err := b.send(ctx, tgID, reply{text: b.t.T("msg.choose_device"), markup: b.kb.chooseDevice()})
	return err
}

func (b *BotFacade) ChooseDevice(ctx context.Context, tgID int64, device string) error {
	d, err := model.ParseDevice(device)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	s, err := b.Purchase.ChooseDevice(ctx, tgID, d)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	if s.Step == model.StepAwaitingPhone {
		_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.ask_phone"), markup: b.kb.phone(), track: true})
		return err
	}
	return b.askQuantity(ctx, tgID)
}

func (b *BotFacade) askQuantity(ctx context.Context, tgID int64) error {
	_, err := b.send(ctx, tgID, reply{text: b.t.T("msg.ask_quantity"), markup: b.kb.quantities(), track: true})
	return err
}

// HandleContact takes the phone shared through the contact button.
func (b *BotFacade) HandleContact(ctx context.Context, tgID int64, msgID int, phone string) error {
	_ = b.Purchase.TrackMessages(ctx, tgID, msgID)
	if err := b.Purchase.SubmitPhone(ctx, tgID, phone); err != nil {
		return b.fail(ctx, tgID, err)
	}
	_, err := b.send(ctx, tgID, reply{text: b.t.T("msg.ask_email"), markup: removeKeyboard(), track: true})
	return err
}

// HandleText routes free text by the current purchase step.
func (b *BotFacade) HandleText(ctx context.Context, tgID int64, msgID int, text string) error {
	step, err := b.Purchase.CurrentStep(ctx, tgID)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	if step != model.StepIdle {
		_ = b.Purchase.TrackMessages(ctx, tgID, msgID)
	}

	switch step {
	case model.StepAwaitingPhone:
		if err := b.Purchase.SubmitPhone(ctx, tgID, text); err != nil {
			return b.fail(ctx, tgID, err)
		}
		_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.ask_email"), markup: removeKeyboard(), track: true})
		return err
	case model.StepAwaitingEmail:
		if err := b.Purchase.SubmitEmail(ctx, tgID, text); err != nil {
			return b.fail(ctx, tgID, err)
		}
		return b.askQuantity(ctx, tgID)
	case model.StepAwaitingQuantity:
		if _, err := b.Purchase.SubmitQuantity(ctx, tgID, text); err != nil {
			return b.fail(ctx, tgID, err)
		}
		if _, err := b.send(ctx, tgID, reply{text: b.t.T("msg.choose_plan"), markup: removeKeyboard(), track: true}); err != nil {
			return err
		}
		_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.back_to_menu"), markup: b.kb.tariffs(nil), track: true})
		return err
	default:
		_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.back_to_menu"), markup: b.kb.start()})
		return err
	}
}

// ChoosePlan stores the tariff. Users without credits skip the credit prompt.
func (b *BotFacade) ChoosePlan(ctx context.Context, tgID int64, months int, configID *int64) error {
	choice, err := b.Purchase.ChoosePlan(ctx, tgID, months, configID)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	if choice.Credits <= 0 {
		return b.ChooseCredits(ctx, tgID, false)
	}
	_, err = b.send(ctx, tgID, reply{
		text:   b.t.T("msg.ask_credits", choice.Credits, model.CreditFloor),
		markup: b.kb.useCredits(),
		track:  true,
	})
	return err
}

func (b *BotFacade) ChooseCredits(ctx context.Context, tgID int64, use bool) error {
	q, err := b.Purchase.ChooseCredits(ctx, tgID, use)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	_, err = b.send(ctx, tgID, reply{text: b.t.T("msg.choose_payment", q.Due), markup: b.kb.payment(q.Months), track: true})
	return err
}

// Pay sends the Telegram invoice for the chosen plan.
func (b *BotFacade) Pay(ctx context.Context, tgID int64, months int, fullName string) error {
	if _, err := b.Purchase.CreatePaymentIntent(ctx, tgID, months, fullName); err != nil {
		return b.fail(ctx, tgID, err)
	}
	return nil
}

// PreCheckout validates the pending payment; a non-nil error rejects it.
func (b *BotFacade) PreCheckout(ctx context.Context, tgID int64, payload string, totalMinor int64) error {
	return b.Purchase.ValidatePreCheckout(ctx, tgID, payload, totalMinor)
}

// PaymentSucceeded fulfils a paid invoice and delivers the configurations.
func (b *BotFacade) PaymentSucceeded(ctx context.Context, c model.PaymentConfirmation) error {
	chatID := c.ChatID
	if chatID == 0 {
		chatID = c.UserID
	}
	f, err := b.Purchase.ConfirmPayment(ctx, c)
	if err != nil {
		// The money is taken either way; the operator has been alerted by the use case.
		if _, sendErr := b.send(ctx, chatID, reply{text: b.t.T("msg.payment_pending"), markup: b.kb.mainMenu()}); sendErr != nil {
			b.log.Warn().Err(sendErr).Int64("tg_id", c.UserID).Msg("failed to tell user about pending payment")
		}
		if errors.Is(err, domain.ErrNotFound) || isUserError(err) {
			return nil
		}
		return err
	}
	b.cleanup(ctx, chatID, f.MessageIDs)

	amount := fmt.Sprintf("%d.%02d", c.TotalAmount/model.MinorUnitsPerRouble, c.TotalAmount%model.MinorUnitsPerRouble)
	_, _ = b.send(ctx, chatID, reply{text: b.t.T("msg.payment_ok", amount, c.Currency)})

	if f.Renewed != nil {
		_, _ = b.send(ctx, chatID, reply{text: b.t.T("msg.renewed", f.Renewed.Label(), f.Days)})
	}
	for _, cfg := range f.Claimed {
		caption := b.t.T("caption."+string(cfg.Device), f.Days)
		if _, err := b.Delivery.SendConfig(ctx, chatID, cfg, caption, nil); err != nil {
			b.log.Error().Err(err).Int64("tg_id", c.UserID).Int64("config_id", cfg.ID).Msg("failed to deliver config")
			_, _ = b.send(ctx, chatID, reply{text: b.t.T("msg.delivery_failed", cfg.Label())})
			continue
		}
		_, _ = b.send(ctx, chatID, reply{text: b.t.T("msg.get_instruction"), markup: b.kb.getInstruction(cfg.Device)})
	}
	if f.Shortfall > 0 {
		_, _ = b.send(ctx, chatID, reply{text: b.t.T("msg.shortfall", f.Shortfall)})
	}
	_, err = b.send(ctx, chatID, reply{text: b.t.T("msg.main_menu"), markup: b.kb.start()})
	return err
}

func (b *BotFacade) Account(ctx context.Context, tgID int64) error {
	view, err := b.Users.Account(ctx, tgID)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	last := b.t.T("msg.not_paid")
	if view.User.LastPaymentAt != nil {
		last = view.User.LastPaymentAt.Format(dateLayout)
	}
	_, err = b.send(ctx, tgID, reply{
		text:   b.t.T("msg.account", last, view.User.Credits),
		markup: b.kb.account(view.Configs),
	})
	return err
}

// Device sends the configuration file of one owned device.
func (b *BotFacade) Device(ctx context.Context, tgID, configID int64) error {
	view, err := b.Users.Device(ctx, tgID, configID)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	cfg := view.Config
	caption := b.t.T("msg.device", b.t.T("device."+string(cfg.Device)), view.DaysLeft)
	if _, err := b.Delivery.SendConfig(ctx, tgID, cfg, caption, b.kb.backToAccount(cfg.ID)); err != nil {
		b.log.Error().Err(err).Int64("config_id", cfg.ID).Msg("failed to send device config")
		_, sendErr := b.send(ctx, tgID, reply{text: b.t.T("msg.config_missing"), markup: b.kb.backToAccount(cfg.ID)})
		return sendErr
	}
	return nil
}

// Renew shows the tariffs for extending one configuration.
func (b *BotFacade) Renew(ctx context.Context, tgID, configID int64) error {
	if _, err := b.Users.Device(ctx, tgID, configID); err != nil {
		return b.fail(ctx, tgID, err)
	}
	_, err := b.send(ctx, tgID, reply{text: b.t.T("msg.choose_plan"), markup: b.kb.tariffs(&configID), track: true})
	return err
}

func (b *BotFacade) Referral(ctx context.Context, tgID int64) error {
	_, err := b.send(ctx, tgID, reply{
		text:      b.t.T("msg.referral", b.Users.ReferralLink(tgID)),
		parseMode: parseModeHTML,
		markup:    b.kb.mainMenu(),
	})
	return err
}

func (b *BotFacade) ShowHelp(ctx context.Context, tgID int64) error {
	_, err := b.send(ctx, tgID, reply{text: b.t.T("msg.help"), markup: b.kb.help()})
	return err
}

func (b *BotFacade) sendInstruction(ctx context.Context, tgID int64, in model.Instruction) error {
	text := b.t.T("msg.instruction", in.Topic, in.Text)
	if in.Link != "" {
		_, err := b.bot.SendPhoto(ctx, adapter.SendPhotoParams{
			ChatID:      tgID,
			URL:         in.Link,
			Caption:     text,
			ParseMode:   parseModeHTML,
			ReplyMarkup: b.kb.closeInstruction(),
		})
		if err == nil {
			return nil
		}
		b.log.Warn().Err(err).Str("topic", in.Topic).Msg("failed to send instruction image, falling back to text")
	}
	_, err := b.send(ctx, tgID, reply{text: text, parseMode: parseModeHTML, markup: b.kb.closeInstruction()})
	return err
}

// Instructions posts every help topic.
func (b *BotFacade) Instructions(ctx context.Context, tgID int64) error {
	list, err := b.Help.Instructions(ctx)
	if err != nil || len(list) == 0 {
		if err != nil {
			b.log.Error().Err(err).Msg("instructions unavailable")
		}
		_, sendErr := b.send(ctx, tgID, reply{text: b.t.T("msg.instructions_unavailable"), markup: b.kb.mainMenu()})
		return sendErr
	}
	for _, in := range list {
		if err := b.sendInstruction(ctx, tgID, in); err != nil {
			return err
		}
	}
	return nil
}

func (b *BotFacade) DeviceInstructions(ctx context.Context, tgID int64, device string) error {
	d, err := model.ParseDevice(device)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	in, err := b.Help.ForDevice(ctx, d)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			b.log.Error().Err(err).Str("device", device).Msg("instruction lookup failed")
		}
		_, sendErr := b.send(ctx, tgID, reply{text: b.t.T("msg.instructions_unavailable")})
		return sendErr
	}
	return b.sendInstruction(ctx, tgID, *in)
}

func (b *BotFacade) IsAdmin(tgID int64) bool {
	_, ok := b.admins[tgID]
	return ok
}

// AdminStats handles /stats for operators.
func (b *BotFacade) AdminStats(ctx context.Context, tgID int64) error {
	if !b.IsAdmin(tgID) {
		_, err := b.send(ctx, tgID, reply{text: b.t.T("admin.unauthorized")})
		return err
	}
	s, err := b.Stats.Totals(ctx)
	if err != nil {
		return b.fail(ctx, tgID, err)
	}
	_, err = b.send(ctx, tgID, reply{text: b.t.T("admin.stats", s.Users, s.FreeConfigs, s.AssignedConfigs, s.LiveInvoices)})
	return err
}

// AdminSync handles /sync: pulls new configuration files from the storage folder.
func (b *BotFacade) AdminSync(ctx context.Context, tgID int64) error {
	if !b.IsAdmin(tgID) {
		_, err := b.send(ctx, tgID, reply{text: b.t.T("admin.unauthorized")})
		return err
	}
	res, err := b.Provisioning.Sync(ctx)
	if err != nil {
		_, sendErr := b.send(ctx, tgID, reply{text: b.t.T("admin.sync_failed", err.Error())})
		if sendErr != nil {
			return sendErr
		}
		return err
	}
	_, err = b.send(ctx, tgID, reply{text: b.t.T("admin.sync", res.Added, res.Skipped)})
	return err
}
