//go:build !integration

package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vpn-subscription-bot/internal/application"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/i18n"
	"vpn-subscription-bot/internal/usecase"

	"github.com/rs/zerolog"
)

// --- fakes ---

type fakeBot struct {
	mu       sync.Mutex
	next     int
	messages []adapter.SendMessageParams
	docs     []adapter.SendDocumentParams
	photos   []adapter.SendPhotoParams
	deleted  []int
	photoErr error
}

func (b *fakeBot) id() int { b.next++; return b.next }

func (b *fakeBot) SendMessage(_ context.Context, p adapter.SendMessageParams) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, p)
	return b.id(), nil
}

func (b *fakeBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) (int, error) {
	return b.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: &adapter.ReplyMarkup{Inline: rows}})
}

func (b *fakeBot) SendDocument(_ context.Context, p adapter.SendDocumentParams) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, p)
	return b.id(), nil
}

func (b *fakeBot) SendPhoto(_ context.Context, p adapter.SendPhotoParams) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.photoErr != nil {
		return 0, b.photoErr
	}
	b.photos = append(b.photos, p)
	return b.id(), nil
}

func (b *fakeBot) DeleteMessages(_ context.Context, _ int64, ids []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ids...)
	return nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.messages))
	for _, m := range b.messages {
		out = append(out, m.Text)
	}
	return out
}

func (b *fakeBot) last() adapter.SendMessageParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messages[len(b.messages)-1]
}

type fakeUsers struct {
	usecase.UserUseCase
	registerResult *usecase.RegisterResult
	account        *usecase.AccountView
	device         *usecase.DeviceView
	deviceErr      error
}

func (f *fakeUsers) RegisterOrFetch(context.Context, int64, string, string) (*usecase.RegisterResult, error) {
	return f.registerResult, nil
}

func (f *fakeUsers) Account(context.Context, int64) (*usecase.AccountView, error) {
	return f.account, nil
}

func (f *fakeUsers) Device(context.Context, int64, int64) (*usecase.DeviceView, error) {
	return f.device, f.deviceErr
}

func (f *fakeUsers) ReferralLink(tgID int64) string { return "https://t.me/test_bot?start=1" }

type fakePurchase struct {
	usecase.PurchaseUseCase
	step        model.Step
	session     *model.Session
	choice      *usecase.PlanChoice
	quote       *usecase.Quote
	fulfillment *model.Fulfillment
	confirmErr  error
	phoneErr    error
	tracked     []int
	usedCredits *bool
}

func (f *fakePurchase) Reset(context.Context, int64) ([]int, error) { return nil, nil }

func (f *fakePurchase) CheckAvailability(context.Context) (int, error) { return 1, nil }

func (f *fakePurchase) ChooseDevice(context.Context, int64, model.Device) (*model.Session, error) {
	return f.session, nil
}

func (f *fakePurchase) SubmitPhone(context.Context, int64, string) error { return f.phoneErr }

func (f *fakePurchase) CurrentStep(context.Context, int64) (model.Step, error) { return f.step, nil }

func (f *fakePurchase) ChoosePlan(context.Context, int64, int, *int64) (*usecase.PlanChoice, error) {
	return f.choice, nil
}

func (f *fakePurchase) ChooseCredits(_ context.Context, _ int64, use bool) (*usecase.Quote, error) {
	f.usedCredits = &use
	return f.quote, nil
}

func (f *fakePurchase) ConfirmPayment(context.Context, model.PaymentConfirmation) (*model.Fulfillment, error) {
	return f.fulfillment, f.confirmErr
}

func (f *fakePurchase) TrackMessages(_ context.Context, _ int64, ids ...int) error {
	f.tracked = append(f.tracked, ids...)
	return nil
}

type fakeDelivery struct {
	sent []int64
	err  error
}

func (f *fakeDelivery) SendConfig(_ context.Context, _ int64, cfg *model.VpnConfig, _ string, _ *adapter.ReplyMarkup) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, cfg.ID)
	return 1, nil
}

type fakeHelp struct {
	list []model.Instruction
	err  error
}

func (f *fakeHelp) Instructions(context.Context) ([]model.Instruction, error) { return f.list, f.err }

func (f *fakeHelp) ForDevice(_ context.Context, d model.Device) (*model.Instruction, error) {
	for _, in := range f.list {
		if in.ForDevice(d) {
			return &in, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeStats struct{ stats *model.Stats }

func (f *fakeStats) Totals(context.Context) (*model.Stats, error) { return f.stats, nil }

type fakeSync struct{ res *usecase.SyncResult }

func (f *fakeSync) Sync(context.Context) (*usecase.SyncResult, error) { return f.res, nil }

type fixture struct {
	bot      *fakeBot
	users    *fakeUsers
	purchase *fakePurchase
	delivery *fakeDelivery
	help     *fakeHelp
	facade   *application.BotFacade
	t        *i18n.Translator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	logger := zerolog.Nop()
	f := &fixture{
		bot:      &fakeBot{},
		users:    &fakeUsers{},
		purchase: &fakePurchase{},
		delivery: &fakeDelivery{},
		help:     &fakeHelp{},
		t:        tr,
	}
	f.facade = application.NewBotFacade(
		f.users, f.purchase, f.delivery, f.help,
		&fakeStats{stats: &model.Stats{Users: 4, FreeConfigs: 3, AssignedConfigs: 2, LiveInvoices: 1}},
		&fakeSync{res: &usecase.SyncResult{Added: 2, Skipped: 5}},
		f.bot, tr,
		application.FacadeOptions{AdminIDs: []int64{42}, ReferralNoticeTTL: time.Hour},
		&logger,
	)
	return f
}

func callbackData(m *adapter.ReplyMarkup) []string {
	var out []string
	if m == nil {
		return out
	}
	for _, row := range m.Inline {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- tests ---

func TestBotFacade_Start(t *testing.T) {
	t.Run("should warn about self referral and show the menu", func(t *testing.T) {
		f := newFixture(t)
		f.users.registerResult = &usecase.RegisterResult{User: &model.User{TelegramID: 7}, Referral: usecase.ReferralSelf}

		if err := f.facade.Start(context.Background(), 7, "bob", "Bob", "7"); err != nil {
			t.Fatalf("Start: %v", err)
		}
		texts := f.bot.texts()
		if len(texts) != 2 || texts[0] != f.t.T("msg.self_referral") {
			t.Fatalf("unexpected replies: %v", texts)
		}
		if texts[1] != f.t.T("msg.welcome", "Bob") {
			t.Errorf("welcome = %q", texts[1])
		}
		if data := callbackData(f.bot.last().ReplyMarkup); !contains(data, application.CbConnectVPN) {
			t.Errorf("menu is missing connect button: %v", data)
		}
	})

	t.Run("should notify the referrer when a link is applied", func(t *testing.T) {
		f := newFixture(t)
		ref := int64(99)
		f.users.registerResult = &usecase.RegisterResult{
			User:     &model.User{TelegramID: 7, ReferrerID: &ref},
			Created:  true,
			Referral: usecase.ReferralApplied,
		}
		if err := f.facade.Start(context.Background(), 7, "bob", "", "99"); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if got := f.bot.messages[0]; got.ChatID != 99 || got.Text != f.t.T("msg.referral_used") {
			t.Errorf("referrer notice = %+v", got)
		}
	})
}

func TestBotFacade_ChooseDevice(t *testing.T) {
	t.Run("should ask for the phone when contacts are missing", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.session = &model.Session{UserID: 7, Step: model.StepAwaitingPhone}
		if err := f.facade.ChooseDevice(context.Background(), 7, "ios"); err != nil {
			t.Fatalf("ChooseDevice: %v", err)
		}
		m := f.bot.last()
		if m.Text != f.t.T("msg.ask_phone") || m.ReplyMarkup == nil || !m.ReplyMarkup.Reply[0][0].RequestContact {
			t.Errorf("unexpected prompt %+v", m)
		}
		if len(f.purchase.tracked) != 1 {
			t.Errorf("prompt should be tracked, got %v", f.purchase.tracked)
		}
	})

	t.Run("should go to quantity when contacts are known", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.session = &model.Session{UserID: 7, Step: model.StepAwaitingQuantity}
		if err := f.facade.ChooseDevice(context.Background(), 7, "android"); err != nil {
			t.Fatalf("ChooseDevice: %v", err)
		}
		if got := f.bot.last().Text; got != f.t.T("msg.ask_quantity") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("should reject an unknown device without failing", func(t *testing.T) {
		f := newFixture(t)
		if err := f.facade.ChooseDevice(context.Background(), 7, "blackberry"); err != nil {
			t.Fatalf("user error must not surface: %v", err)
		}
	})
}

func TestBotFacade_HandleText(t *testing.T) {
	t.Run("should answer invalid phone and keep the step", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.step = model.StepAwaitingPhone
		f.purchase.phoneErr = domain.ErrInvalidPhone

		if err := f.facade.HandleText(context.Background(), 7, 55, "12345"); err != nil {
			t.Fatalf("HandleText: %v", err)
		}
		if got := f.bot.last().Text; got != f.t.T("msg.invalid_phone") {
			t.Errorf("got %q", got)
		}
		if !containsInt(f.purchase.tracked, 55) {
			t.Errorf("user input should be tracked for cleanup: %v", f.purchase.tracked)
		}
	})

	t.Run("should point to the menu outside the flow", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.step = model.StepIdle
		if err := f.facade.HandleText(context.Background(), 7, 55, "hello"); err != nil {
			t.Fatalf("HandleText: %v", err)
		}
		if got := f.bot.last().Text; got != f.t.T("msg.back_to_menu") {
			t.Errorf("got %q", got)
		}
		if len(f.purchase.tracked) != 0 {
			t.Errorf("idle messages must not be tracked")
		}
	})
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func TestBotFacade_ChoosePlan(t *testing.T) {
	t.Run("should skip the credit prompt for an empty balance", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.choice = &usecase.PlanChoice{Invoice: &model.Invoice{}, Credits: 0}
		f.purchase.quote = &usecase.Quote{Months: 3, Total: 699, Due: 699}

		if err := f.facade.ChoosePlan(context.Background(), 7, 3, nil); err != nil {
			t.Fatalf("ChoosePlan: %v", err)
		}
		if f.purchase.usedCredits == nil || *f.purchase.usedCredits {
			t.Fatalf("credits should be declined automatically")
		}
		m := f.bot.last()
		if m.Text != f.t.T("msg.choose_payment", 699) {
			t.Errorf("got %q", m.Text)
		}
		if data := callbackData(m.ReplyMarkup); !contains(data, "pay_3") {
			t.Errorf("payment button missing: %v", data)
		}
	})

	t.Run("should offer credits when the user has a balance", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.choice = &usecase.PlanChoice{Invoice: &model.Invoice{}, Credits: 50}
		if err := f.facade.ChoosePlan(context.Background(), 7, 1, nil); err != nil {
			t.Fatalf("ChoosePlan: %v", err)
		}
		data := callbackData(f.bot.last().ReplyMarkup)
		if !contains(data, application.CbUseCredits) || !contains(data, application.CbSkipCredits) {
			t.Errorf("credit buttons missing: %v", data)
		}
	})
}

func TestBotFacade_PaymentSucceeded(t *testing.T) {
	uid := int64(7)
	conf := model.PaymentConfirmation{UserID: uid, ChatID: uid, TotalAmount: 69900, Currency: "RUB"}

	t.Run("should clean up and deliver every claimed config", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.fulfillment = &model.Fulfillment{
			UserID:     uid,
			Days:       90,
			Device:     model.DeviceIOS,
			Claimed:    []*model.VpnConfig{{ID: 1, Device: model.DeviceIOS, UserID: &uid}, {ID: 2, Device: model.DeviceIOS, UserID: &uid}},
			MessageIDs: []int{10, 11},
		}
		if err := f.facade.PaymentSucceeded(context.Background(), conf); err != nil {
			t.Fatalf("PaymentSucceeded: %v", err)
		}
		if len(f.bot.deleted) != 2 {
			t.Errorf("flow messages not deleted: %v", f.bot.deleted)
		}
		if len(f.delivery.sent) != 2 {
			t.Errorf("delivered %v", f.delivery.sent)
		}
		texts := f.bot.texts()
		if texts[0] != f.t.T("msg.payment_ok", "699.00", "RUB") {
			t.Errorf("receipt = %q", texts[0])
		}
		if texts[len(texts)-1] != f.t.T("msg.main_menu") {
			t.Errorf("should end on the main menu")
		}
	})

	t.Run("should report a shortfall and failed deliveries", func(t *testing.T) {
		f := newFixture(t)
		f.delivery.err = errors.New("disk gone")
		f.purchase.fulfillment = &model.Fulfillment{
			UserID:    uid,
			Days:      30,
			Claimed:   []*model.VpnConfig{{ID: 1, Device: model.DeviceMac, UserID: &uid, FileName: "a.conf"}},
			Shortfall: 1,
		}
		if err := f.facade.PaymentSucceeded(context.Background(), conf); err != nil {
			t.Fatalf("PaymentSucceeded: %v", err)
		}
		joined := strings.Join(f.bot.texts(), "\n")
		if !strings.Contains(joined, f.t.T("msg.shortfall", 1)) {
			t.Errorf("shortfall not reported")
		}
		if !strings.Contains(joined, f.t.T("msg.delivery_failed", "mac_7_a.conf")) {
			t.Errorf("delivery failure not reported")
		}
	})

	t.Run("should tell the user an unmatched charge is with the operator", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.confirmErr = domain.ErrNotFound
		if err := f.facade.PaymentSucceeded(context.Background(), conf); err != nil {
			t.Fatalf("PaymentSucceeded: %v", err)
		}
		if got := f.bot.texts(); len(got) != 1 || got[0] != f.t.T("msg.payment_pending") {
			t.Errorf("expected the pending notice, got %v", got)
		}
	})

	t.Run("should tell the user and surface the error when fulfilment fails after the charge", func(t *testing.T) {
		f := newFixture(t)
		f.purchase.confirmErr = errors.New("confirm payment: connection reset")
		err := f.facade.PaymentSucceeded(context.Background(), conf)
		if err == nil {
			t.Fatal("expected the failure to be returned for logging")
		}
		if got := f.bot.texts(); len(got) != 1 || got[0] != f.t.T("msg.payment_pending") {
			t.Errorf("expected the pending notice, got %v", got)
		}
		if len(f.delivery.sent) != 0 {
			t.Errorf("nothing may be delivered, got %v", f.delivery.sent)
		}
	})
}

func TestBotFacade_Account(t *testing.T) {
	f := newFixture(t)
	uid := int64(7)
	paid := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	f.users.account = &usecase.AccountView{
		User:    &model.User{TelegramID: uid, Credits: 25, LastPaymentAt: &paid},
		Configs: []*model.VpnConfig{{ID: 3, Device: model.DeviceWindows, UserID: &uid, FileName: "w.conf"}},
	}
	if err := f.facade.Account(context.Background(), uid); err != nil {
		t.Fatalf("Account: %v", err)
	}
	m := f.bot.last()
	if m.Text != f.t.T("msg.account", "10.05.2024", 25) {
		t.Errorf("got %q", m.Text)
	}
	if data := callbackData(m.ReplyMarkup); !contains(data, "device_3") {
		t.Errorf("device button missing: %v", data)
	}
}

func TestBotFacade_Instructions(t *testing.T) {
	t.Run("should send images when a link is present", func(t *testing.T) {
		f := newFixture(t)
		f.help.list = []model.Instruction{{Topic: "iOS setup", Text: "step", Link: "https://img"}, {Topic: "Android", Text: "go"}}
		if err := f.facade.Instructions(context.Background(), 7); err != nil {
			t.Fatalf("Instructions: %v", err)
		}
		if len(f.bot.photos) != 1 || len(f.bot.messages) != 1 {
			t.Errorf("photos=%d messages=%d", len(f.bot.photos), len(f.bot.messages))
		}
	})

	t.Run("should fall back to text when the image fails", func(t *testing.T) {
		f := newFixture(t)
		f.bot.photoErr = errors.New("bad url")
		f.help.list = []model.Instruction{{Topic: "ios", Text: "step", Link: "https://img"}}
		if err := f.facade.DeviceInstructions(context.Background(), 7, "ios"); err != nil {
			t.Fatalf("DeviceInstructions: %v", err)
		}
		if got := f.bot.last().Text; got != f.t.T("msg.instruction", "ios", "step") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("should say instructions are unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.help.err = errors.New("sheets down")
		if err := f.facade.Instructions(context.Background(), 7); err != nil {
			t.Fatalf("Instructions: %v", err)
		}
		if got := f.bot.last().Text; got != f.t.T("msg.instructions_unavailable") {
			t.Errorf("got %q", got)
		}
	})
}

func TestBotFacade_Admin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.facade.AdminStats(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if got := f.bot.last().Text; got != f.t.T("admin.unauthorized") {
		t.Errorf("non-admin got %q", got)
	}
	if err := f.facade.AdminStats(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if got := f.bot.last().Text; got != f.t.T("admin.stats", 4, 3, 2, 1) {
		t.Errorf("stats = %q", got)
	}
	if err := f.facade.AdminSync(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if got := f.bot.last().Text; got != f.t.T("admin.sync", 2, 5) {
		t.Errorf("sync = %q", got)
	}
}

func TestBotFacade_ErrorText(t *testing.T) {
	f := newFixture(t)
	cases := map[error]string{
		domain.ErrSessionExpired:                          "msg.session_expired",
		domain.ErrNotOwner:                                "msg.not_owner",
		domain.ErrInvalidQuantity:                         "msg.invalid_quantity",
		errors.New("boom"):                                "msg.error",
		errors.Join(errors.New("ctx"), domain.ErrNotFound): "msg.no_invoice",
	}
	for err, key := range cases {
		if got := f.facade.ErrorText(err); got != f.t.T(key) {
			t.Errorf("ErrorText(%v) = %q, want %s", err, got, key)
		}
	}
}
