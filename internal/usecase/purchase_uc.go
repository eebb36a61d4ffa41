package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/i18n"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

// PlanChoice is returned after a tariff is picked; Credits drives the credit prompt.
type PlanChoice struct {
	Invoice *model.Invoice
	Credits int
}

// Quote is the price breakdown shown before the invoice is sent.
type Quote struct {
	Months      int
	Total       int
	Due         int
	CreditsUsed int
	Remaining   int
}

// PurchaseUseCase drives the conversation from device choice to fulfillment.
type PurchaseUseCase interface {
	CheckAvailability(ctx context.Context) (int, error)
	ChooseDevice(ctx context.Context, userID int64, device model.Device) (*model.Session, error)
	SubmitPhone(ctx context.Context, userID int64, phone string) error
	SubmitEmail(ctx context.Context, userID int64, email string) error
	SubmitQuantity(ctx context.Context, userID int64, text string) (int, error)
	// ChoosePlan with a configID starts a renewal of that configuration.
	ChoosePlan(ctx context.Context, userID int64, months int, configID *int64) (*PlanChoice, error)
	ChooseCredits(ctx context.Context, userID int64, use bool) (*Quote, error)
	CreatePaymentIntent(ctx context.Context, userID int64, months int, fullName string) (*model.PaymentIntent, error)
	ValidatePreCheckout(ctx context.Context, userID int64, payload string, totalMinor int64) error
	ConfirmPayment(ctx context.Context, c model.PaymentConfirmation) (*model.Fulfillment, error)
	// TrackMessages remembers bot messages for cleanup when the flow ends.
	TrackMessages(ctx context.Context, userID int64, ids ...int) error
	CurrentStep(ctx context.Context, userID int64) (model.Step, error)
	// Reset deletes the invoice and the session and returns the tracked message ids.
	Reset(ctx context.Context, userID int64) ([]int, error)
}

type PurchaseOptions struct {
	IdleTimeout time.Duration
	Currency    string
}

type purchaseUC struct {
	users    repository.UserRepository
	configs  repository.VpnConfigRepository
	invoices repository.InvoiceRepository
	sessions repository.SessionRepository
	tm       repository.TransactionManager
	gateway  adapter.PaymentGateway
	alerts   adapter.AlertSink
	t        *i18n.Translator
	opts     PurchaseOptions
	now      func() time.Time
	log      *zerolog.Logger
}

func NewPurchaseUseCase(
	users repository.UserRepository,
	configs repository.VpnConfigRepository,
	invoices repository.InvoiceRepository,
	sessions repository.SessionRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	alerts adapter.AlertSink,
	translator *i18n.Translator,
	opts PurchaseOptions,
	logger *zerolog.Logger,
) *purchaseUC {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = model.DefaultSessionIdle
	}
	if opts.Currency == "" {
		opts.Currency = model.CurrencyRUB
	}
	l := logger.With().Str("component", "purchase_uc").Logger()
	return &purchaseUC{
		users:    users,
		configs:  configs,
		invoices: invoices,
		sessions: sessions,
		tm:       tm,
		gateway:  gateway,
		alerts:   alerts,
		t:        translator,
		opts:     opts,
		now:      time.Now,
		log:      &l,
	}
}

// loadSession returns the live session of the user and checks it is at one of steps.
func (p *purchaseUC) loadSession(ctx context.Context, userID int64, steps ...model.Step) (*model.Session, error) {
	s, err := p.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionExpired
		}
		return nil, err
	}
	if s.Expired(p.now()) {
		_ = p.sessions.Delete(ctx, userID)
		return nil, domain.ErrSessionExpired
	}
	if len(steps) == 0 {
		return s, nil
	}
	for _, st := range steps {
		if s.Step == st {
			return s, nil
		}
	}
	return nil, domain.ErrUnexpectedStep
}

func (p *purchaseUC) saveSession(ctx context.Context, s *model.Session, step model.Step) error {
	s.Advance(step)
	s.Touch(p.now(), p.opts.IdleTimeout)
	return p.sessions.Save(ctx, s)
}

func (p *purchaseUC) CheckAvailability(ctx context.Context) (int, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.CheckAvailability")()
	free, err := p.configs.CountFree(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	metrics.SetFreeConfigs(free)
	if free == 0 {
		p.log.Warn().Msg("no free configurations left")
		p.alerts.Alert(ctx, p.t.T("alert.no_configs"))
		metrics.IncPurchaseStep("availability", "exhausted")
		return 0, domain.ErrNoFreeConfigs
	}
	return free, nil
}

func (p *purchaseUC) ChooseDevice(ctx context.Context, userID int64, device model.Device) (*model.Session, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.ChooseDevice")()
	if _, err := model.ParseDevice(string(device)); err != nil {
		return nil, err
	}
	usr, err := p.users.FindByTelegramID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if err := p.invoices.Replace(ctx, repository.NoTX, model.NewInvoice(userID, device)); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s, err := p.loadSession(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionExpired) {
			return nil, err
		}
		s = model.NewSession(userID, p.now(), p.opts.IdleTimeout)
	}
	s.Device = device
	s.PendingPhone = ""
	next := model.StepAwaitingPhone
	if usr.HasContacts() {
		next = model.StepAwaitingQuantity
	}
	if err := p.saveSession(ctx, s, next); err != nil {
		return nil, err
	}
	metrics.IncPurchaseStep("device", "ok")
	return s, nil
}

// normalizePhone accepts the contact-button form without the leading plus.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "7") && len(s) == 11 {
		return "+" + s
	}
	return s
}

func (p *purchaseUC) SubmitPhone(ctx context.Context, userID int64, phone string) error {
	defer logging.TraceDuration(p.log, "PurchaseUC.SubmitPhone")()
	s, err := p.loadSession(ctx, userID, model.StepAwaitingPhone)
	if err != nil {
		return err
	}
	phone = normalizePhone(phone)
	if err := model.ValidatePhone(phone); err != nil {
		metrics.IncPurchaseStep("phone", "invalid")
		return err
	}
	s.PendingPhone = phone
	if err := p.saveSession(ctx, s, model.StepAwaitingEmail); err != nil {
		return err
	}
	metrics.IncPurchaseStep("phone", "ok")
	return nil
}

func (p *purchaseUC) SubmitEmail(ctx context.Context, userID int64, email string) error {
	defer logging.TraceDuration(p.log, "PurchaseUC.SubmitEmail")()
	s, err := p.loadSession(ctx, userID, model.StepAwaitingEmail)
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if err := model.ValidateEmail(email); err != nil {
		metrics.IncPurchaseStep("email", "invalid")
		return err
	}
	if err := p.users.UpdateContacts(ctx, repository.NoTX, userID, s.PendingPhone, email); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}
	s.PendingPhone = ""
	if err := p.saveSession(ctx, s, model.StepAwaitingQuantity); err != nil {
		return err
	}
	metrics.IncPurchaseStep("email", "ok")
	return nil
}

func (p *purchaseUC) SubmitQuantity(ctx context.Context, userID int64, text string) (int, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.SubmitQuantity")()
	s, err := p.loadSession(ctx, userID, model.StepAwaitingQuantity)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		metrics.IncPurchaseStep("quantity", "invalid")
		return 0, domain.ErrInvalidQuantity
	}
	inv, err := p.invoices.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return 0, err
	}
	if err := inv.SetQuantity(n); err != nil {
		metrics.IncPurchaseStep("quantity", "invalid")
		return 0, err
	}
	if err := p.invoices.Update(ctx, repository.NoTX, inv); err != nil {
		return 0, err
	}
	if err := p.saveSession(ctx, s, model.StepChoosingPlan); err != nil {
		return 0, err
	}
	metrics.IncPurchaseStep("quantity", "ok")
	return n, nil
}

func (p *purchaseUC) ChoosePlan(ctx context.Context, userID int64, months int, configID *int64) (*PlanChoice, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.ChoosePlan")()
	usr, err := p.users.FindByTelegramID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}

	var (
		s   *model.Session
		inv *model.Invoice
	)
	if configID != nil {
		cfg, err := p.configs.FindByID(ctx, repository.NoTX, *configID)
		if err != nil {
			return nil, err
		}
		if !cfg.OwnedBy(userID) {
			return nil, domain.ErrNotOwner
		}
		inv = model.NewInvoice(userID, cfg.Device)
		id := cfg.ID
		inv.ConfigID = &id
		inv.SetPlan(months)
		if err := p.invoices.Replace(ctx, repository.NoTX, inv); err != nil {
			return nil, fmt.Errorf("create renewal invoice: %w", err)
		}
		s, err = p.loadSession(ctx, userID)
		if err != nil {
			if !errors.Is(err, domain.ErrSessionExpired) {
				return nil, err
			}
			s = model.NewSession(userID, p.now(), p.opts.IdleTimeout)
		}
		s.Device = cfg.Device
	} else {
		s, err = p.loadSession(ctx, userID, model.StepChoosingPlan, model.StepChoosingCredits, model.StepAwaitingPayment)
		if err != nil {
			return nil, err
		}
		inv, err = p.invoices.FindByUser(ctx, repository.NoTX, userID)
		if err != nil {
			return nil, err
		}
		inv.SetPlan(months)
		if err := p.invoices.Update(ctx, repository.NoTX, inv); err != nil {
			return nil, err
		}
	}

	if err := p.saveSession(ctx, s, model.StepChoosingCredits); err != nil {
		return nil, err
	}
	outcome := "new"
	if inv.IsRenewal() {
		outcome = "renewal"
	}
	metrics.IncPurchaseStep("plan", outcome)
	return &PlanChoice{Invoice: inv, Credits: usr.Credits}, nil
}

func quoteFor(inv *model.Invoice, balance int) *Quote {
	q := &Quote{Months: inv.Months(), Total: inv.Total(), Due: inv.Total(), Remaining: balance}
	if inv.UseCredits && balance > 0 {
		q.Due, q.CreditsUsed, q.Remaining = model.ApplyCredits(q.Total, balance)
	}
	return q
}

func (p *purchaseUC) ChooseCredits(ctx context.Context, userID int64, use bool) (*Quote, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.ChooseCredits")()
	s, err := p.loadSession(ctx, userID, model.StepChoosingCredits)
	if err != nil {
		return nil, err
	}
	inv, err := p.invoices.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	usr, err := p.users.FindByTelegramID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	inv.UseCredits = use
	if err := p.invoices.Update(ctx, repository.NoTX, inv); err != nil {
		return nil, err
	}
	if err := p.saveSession(ctx, s, model.StepAwaitingPayment); err != nil {
		return nil, err
	}
	metrics.IncPurchaseStep("credits", strconv.FormatBool(use))
	return quoteFor(inv, usr.Credits), nil
}

// CreatePaymentIntent prices the live invoice and sends it through the gateway.
func (p *purchaseUC) CreatePaymentIntent(ctx context.Context, userID int64, months int, fullName string) (*model.PaymentIntent, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.CreatePaymentIntent")()
	s, err := p.loadSession(ctx, userID, model.StepAwaitingPayment)
	if err != nil {
		return nil, err
	}
	inv, err := p.invoices.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if months > 0 && months != inv.Months() {
		// stale button from an earlier plan choice
		return nil, domain.ErrUnexpectedStep
	}
	usr, err := p.users.FindByTelegramID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}

	q := quoteFor(inv, usr.Credits)
	customer := model.Customer{FullName: strings.TrimSpace(fullName)}
	if customer.FullName == "" {
		customer.FullName = usr.Username
	}
	if usr.Phone != nil {
		customer.Phone = *usr.Phone
	}
	if usr.Email != nil {
		customer.Email = *usr.Email
	}
	intent := &model.PaymentIntent{
		Title:       p.t.T("invoice.title"),
		Description: p.t.T("invoice.description", inv.DaysToIncrease, q.Due),
		Payload: model.EncodePayload(model.Payload{
			UserID:           userID,
			CreatedAt:        p.now(),
			RemainingCredits: q.Remaining,
		}),
		Amount:      q.Due,
		Currency:    p.opts.Currency,
		Customer:    customer,
		Days:        inv.DaysToIncrease,
		Quantity:    inv.Quantity,
		CreditsUsed: q.CreditsUsed,
	}

	msgID, err := p.gateway.SendInvoice(ctx, userID, *intent)
	if err != nil {
		metrics.IncPurchaseStep("invoice", "error")
		return nil, fmt.Errorf("send invoice via %s: %w", p.gateway.Name(), err)
	}
	s.Track(msgID)
	if err := p.saveSession(ctx, s, model.StepAwaitingPayment); err != nil {
		return nil, err
	}
	metrics.IncPurchaseStep("invoice", "sent")
	p.log.Info().
		Int64("tg_id", userID).
		Int("amount", intent.Amount).
		Int("credits_used", intent.CreditsUsed).
		Int("days", intent.Days).
		Msg("invoice sent")
	return intent, nil
}

func (p *purchaseUC) ValidatePreCheckout(ctx context.Context, userID int64, payload string, totalMinor int64) error {
	defer logging.TraceDuration(p.log, "PurchaseUC.ValidatePreCheckout")()
	pl, err := model.DecodePayload(payload)
	if err != nil {
		return err
	}
	if pl.UserID != userID {
		return domain.ErrInvalidPayload
	}
	inv, err := p.invoices.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if inv.Paid || inv.DaysToIncrease == 0 {
		return domain.ErrInvalidPayload
	}
	usr, err := p.users.FindByTelegramID(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	q := quoteFor(inv, usr.Credits)
	if int64(q.Due)*model.MinorUnitsPerRouble != totalMinor {
		p.log.Warn().Int64("tg_id", userID).Int64("total", totalMinor).Int("due", q.Due).Msg("pre-checkout amount mismatch")
		return domain.ErrInvalidPayload
	}
	return nil
}

// ConfirmPayment applies a successful payment in one serializable transaction.
// A repeated confirmation finds no invoice and returns domain.ErrNotFound.
func (p *purchaseUC) ConfirmPayment(ctx context.Context, c model.PaymentConfirmation) (*model.Fulfillment, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.ConfirmPayment")()
	pl, err := model.DecodePayload(c.Payload)
	if err == nil && pl.UserID != c.UserID {
		err = domain.ErrInvalidPayload
	}
	if err != nil {
		metrics.IncPayment("invalid_payload")
		p.alertUnfulfilled(ctx, c, err)
		return nil, err
	}

	now := p.now()
	paid := int(c.TotalAmount / model.MinorUnitsPerRouble)
	var (
		f         *model.Fulfillment
		noInvoice bool
	)

	// Row locks on the invoice and the user serialize confirmations; ClaimFree skips locked rows.
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err = p.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		noInvoice = false
		inv, err := p.invoices.FindByUserForUpdate(ctx, tx, c.UserID)
		if err != nil {
			noInvoice = errors.Is(err, domain.ErrNotFound)
			return err
		}
		usr, err := p.users.FindByTelegramIDForUpdate(ctx, tx, c.UserID)
		if err != nil {
			return err
		}

		f = &model.Fulfillment{
			UserID:     c.UserID,
			Renewal:    inv.IsRenewal(),
			Days:       inv.DaysToIncrease,
			Device:     inv.Device,
			PaidAmount: paid,
		}

		usr.Credits = pl.RemainingCredits
		if usr.HasReferrer() {
			bonus := model.ReferralReward(paid)
			if bonus > 0 {
				err := p.users.AddCredits(ctx, tx, *usr.ReferrerID, bonus)
				switch {
				case err == nil:
				case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
					p.log.Warn().Int64("referrer", *usr.ReferrerID).Msg("referrer is gone, reward skipped")
				default:
					return fmt.Errorf("credit referrer: %w", err)
				}
				usr.Credits += bonus
			}
			ref := *usr.ReferrerID
			f.ReferrerID = &ref
			f.ReferralBonus = bonus
			usr.ReferrerID = nil
		}
		usr.SubscribeDaysLeft += inv.DaysToIncrease
		paidAt := now
		usr.LastPaymentAt = &paidAt
		usr.IsTrial = false
		usr.IsActive = true
		if err := p.users.Save(ctx, tx, usr); err != nil {
			return err
		}

		if inv.IsRenewal() {
			cfg, err := p.configs.FindByID(ctx, tx, *inv.ConfigID)
			if err != nil {
				return err
			}
			if !cfg.OwnedBy(c.UserID) {
				return domain.ErrNotOwner
			}
			exp := cfg.Extend(inv.DaysToIncrease, now)
			if err := p.configs.UpdateExpiry(ctx, tx, cfg.ID, exp); err != nil {
				return err
			}
			f.Renewed = cfg
		} else {
			expiresAt := model.TruncateDay(now).AddDate(0, 0, inv.DaysToIncrease)
			f.Claimed = f.Claimed[:0]
			for i := 0; i < inv.Quantity; i++ {
				cfg, err := p.configs.ClaimFree(ctx, tx, c.UserID, expiresAt, inv.Device)
				if errors.Is(err, domain.ErrNoFreeConfigs) {
					f.Shortfall = inv.Quantity - i
					break
				}
				if err != nil {
					return err
				}
				f.Claimed = append(f.Claimed, cfg)
			}
		}

		inv.MarkPaid(now)
		return p.invoices.DeleteByUser(ctx, tx, c.UserID)
	})
	if err != nil {
		if noInvoice {
			p.log.Error().Int64("tg_id", c.UserID).Str("charge", c.ProviderCharge).Msg("charge without live invoice")
			metrics.IncPayment("unmatched")
			p.alerts.Alert(ctx, p.t.T("alert.payment_unmatched", c.UserID, formatAmount(c), c.ProviderCharge))
			return nil, domain.ErrNotFound
		}
		metrics.IncPayment("failed")
		p.alertUnfulfilled(ctx, c, err)
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	if s, err := p.sessions.Get(ctx, c.UserID); err == nil {
		f.MessageIDs = s.MessageIDs
	}
	if err := p.sessions.Delete(ctx, c.UserID); err != nil {
		p.log.Warn().Err(err).Int64("tg_id", c.UserID).Msg("failed to drop session after payment")
	}

	metrics.IncPayment("succeeded")
	metrics.AddPaymentRevenue(paid)
	if f.ReferralBonus > 0 {
		metrics.AddReferralReward(f.ReferralBonus * 2)
	}
	for _, cfg := range f.Claimed {
		metrics.IncConfigClaimed(string(cfg.Device))
	}
	if f.Shortfall > 0 {
		p.log.Error().Int64("tg_id", c.UserID).Int("shortfall", f.Shortfall).Msg("not enough free configurations for paid order")
		p.alerts.Alert(ctx, p.t.T("alert.shortfall", c.UserID, len(f.Claimed)+f.Shortfall, len(f.Claimed)))
	}
	p.log.Info().
		Int64("tg_id", c.UserID).
		Int("paid", paid).
		Bool("renewal", f.Renewal).
		Int("claimed", len(f.Claimed)).
		Str("provider_charge", c.ProviderCharge).
		Msg("payment fulfilled")
	return f, nil
}

// alertUnfulfilled tells the operator about a charge that produced nothing for the user.
func (p *purchaseUC) alertUnfulfilled(ctx context.Context, c model.PaymentConfirmation, cause error) {
	p.log.Error().Err(cause).Int64("tg_id", c.UserID).Str("charge", c.ProviderCharge).Msg("charged payment not fulfilled")
	p.alerts.Alert(ctx, p.t.T("alert.payment_failed", c.UserID, formatAmount(c), c.ProviderCharge, cause.Error()))
}

func formatAmount(c model.PaymentConfirmation) string {
	return fmt.Sprintf("%d.%02d %s", c.TotalAmount/model.MinorUnitsPerRouble, c.TotalAmount%model.MinorUnitsPerRouble, c.Currency)
}

func (p *purchaseUC) TrackMessages(ctx context.Context, userID int64, ids ...int) error {
	s, err := p.loadSession(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return nil
		}
		return err
	}
	s.Track(ids...)
	return p.sessions.Save(ctx, s)
}

// CurrentStep is idle when there is no live session.
func (p *purchaseUC) CurrentStep(ctx context.Context, userID int64) (model.Step, error) {
	s, err := p.loadSession(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return model.StepIdle, nil
		}
		return "", err
	}
	return s.Step, nil
}

func (p *purchaseUC) Reset(ctx context.Context, userID int64) ([]int, error) {
	defer logging.TraceDuration(p.log, "PurchaseUC.Reset")()
	if err := p.invoices.DeleteByUser(ctx, repository.NoTX, userID); err != nil {
		return nil, err
	}
	var ids []int
	s, err := p.sessions.Get(ctx, userID)
	switch {
	case err == nil:
		ids = s.MessageIDs
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}
	if err := p.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return ids, nil
}
