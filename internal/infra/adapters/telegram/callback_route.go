package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"vpn-subscription-bot/internal/application"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/infra/metrics"
)

type cbHandler func(ctx context.Context, q *tgbotapi.CallbackQuery, chatID int64, data string) error

// cbRoute pairs a handler with the spinner text. Navigation routes remove the
// message whose button was pressed.
type cbRoute struct {
	Fn        cbHandler
	AnswerKey string
	Navigate  bool
}

type prefixCB struct {
	Prefix string
	cbRoute
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbRoute {
	return map[string]cbRoute{
		application.CbMainMenu:     {Fn: r.menuCBRoute, AnswerKey: "cb.main_menu", Navigate: true},
		application.CbConnectVPN:   {Fn: r.connectCBRoute, AnswerKey: "cb.choose_device", Navigate: true},
		application.CbAddDevice:    {Fn: r.connectCBRoute, AnswerKey: "cb.choose_device", Navigate: true},
		application.CbAccount:      {Fn: r.accountCBRoute, AnswerKey: "cb.account", Navigate: true},
		application.CbReferral:     {Fn: r.referralCBRoute, AnswerKey: "cb.referral", Navigate: true},
		application.CbHelp:         {Fn: r.helpCBRoute, AnswerKey: "cb.help", Navigate: true},
		application.CbInstructions: {Fn: r.instructionsCBRoute, AnswerKey: "cb.instruction", Navigate: true},
		application.CbUseCredits:   {Fn: r.creditsCBRoute(true), AnswerKey: "cb.payment", Navigate: true},
		application.CbSkipCredits:  {Fn: r.creditsCBRoute(false), AnswerKey: "cb.payment", Navigate: true},
		application.CbClose:        {Fn: func(context.Context, *tgbotapi.CallbackQuery, int64, string) error { return nil }, Navigate: true},
	}
}

func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: application.PrefixChoose, cbRoute: cbRoute{Fn: r.chooseDeviceCBRoute, AnswerKey: "cb.quantity", Navigate: true}},
		{Prefix: application.PrefixTariff, cbRoute: cbRoute{Fn: r.tariffCBRoute, AnswerKey: "cb.payment", Navigate: true}},
		{Prefix: application.PrefixPay, cbRoute: cbRoute{Fn: r.payCBRoute, AnswerKey: "cb.payment", Navigate: true}},
		{Prefix: application.PrefixDevice, cbRoute: cbRoute{Fn: r.deviceCBRoute, AnswerKey: "cb.config_sent", Navigate: true}},
		{Prefix: application.PrefixRenew, cbRoute: cbRoute{Fn: r.renewCBRoute, AnswerKey: "cb.renew", Navigate: true}},
	}
}

// matchCallback resolves data to a route: exact names first, then prefixes,
// then the <device>_instructions suffix.
func (r *RealTelegramBotAdapter) matchCallback(data string) (cbRoute, string, bool) {
	if rt, ok := r.cbRoutes()[data]; ok {
		return rt, data, true
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.cbRoute, pr.Prefix, true
		}
	}
	if strings.HasSuffix(data, application.SuffixInstr) {
		return cbRoute{Fn: r.deviceInstructionsCBRoute, AnswerKey: "cb.instruction"}, application.SuffixInstr, true
	}
	return cbRoute{}, "", false
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.From == nil {
		return errors.New("invalid callback query")
	}
	chatID := q.From.ID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	data := strings.TrimSpace(q.Data)

	route, name, ok := r.matchCallback(data)
	if !ok {
		_, _ = r.client.Request(tgbotapi.NewCallback(q.ID, r.translator.T("cb.error")))
		return errors.New("unknown callback data: " + data)
	}
	metrics.IncTelegramCommand("cb:" + name)

	answer := ""
	if route.AnswerKey != "" {
		answer = r.translator.T(route.AnswerKey)
	}
	if _, err := r.client.Request(tgbotapi.NewCallback(q.ID, answer)); err != nil {
		r.log.Debug().Err(err).Msg("failed to answer callback")
	}
	if route.Navigate && q.Message != nil {
		if err := r.DeleteMessages(ctx, chatID, []int{q.Message.MessageID}); err != nil {
			r.log.Debug().Err(err).Int64("chat_id", chatID).Msg("failed to delete pressed message")
		}
	}
	return route.Fn(ctx, q, chatID, data)
}

func (r *RealTelegramBotAdapter) menuCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
	return r.facade.MainMenu(ctx, id)
}

func (r *RealTelegramBotAdapter) connectCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
	return r.facade.ConnectVPN(ctx, id)
}

func (r *RealTelegramBotAdapter) accountCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
	return r.facade.Account(ctx, id)
}

func (r *RealTelegramBotAdapter) referralCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
	return r.facade.Referral(ctx, id)
}

func (r *RealTelegramBotAdapter) helpCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
	return r.facade.ShowHelp(ctx, id)
}

func (r *RealTelegramBotAdapter) instructionsCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
	return r.facade.Instructions(ctx, id)
}

func (r *RealTelegramBotAdapter) creditsCBRoute(use bool) cbHandler {
	return func(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, _ string) error {
		return r.facade.ChooseCredits(ctx, id, use)
	}
}

func (r *RealTelegramBotAdapter) chooseDeviceCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, data string) error {
	return r.facade.ChooseDevice(ctx, id, strings.TrimPrefix(data, application.PrefixChoose))
}

func (r *RealTelegramBotAdapter) tariffCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, data string) error {
	months, configID, err := parseTariff(data)
	if err != nil {
		return err
	}
	return r.facade.ChoosePlan(ctx, id, months, configID)
}

func (r *RealTelegramBotAdapter) payCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery, id int64, data string) error {
	months, err := strconv.Atoi(strings.TrimPrefix(data, application.PrefixPay))
	if err != nil {
		return domain.ErrInvalidArgument
	}
	return r.facade.Pay(ctx, id, months, fullName(q.From))
}

func (r *RealTelegramBotAdapter) deviceCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, data string) error {
	cid, err := strconv.ParseInt(strings.TrimPrefix(data, application.PrefixDevice), 10, 64)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	return r.facade.Device(ctx, id, cid)
}

func (r *RealTelegramBotAdapter) renewCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, data string) error {
	cid, err := strconv.ParseInt(strings.TrimPrefix(data, application.PrefixRenew), 10, 64)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	return r.facade.Renew(ctx, id, cid)
}

func (r *RealTelegramBotAdapter) deviceInstructionsCBRoute(ctx context.Context, _ *tgbotapi.CallbackQuery, id int64, data string) error {
	return r.facade.DeviceInstructions(ctx, id, strings.TrimSuffix(data, application.SuffixInstr))
}

// parseTariff reads tariff_<months> or tariff_<months>_<configID>_cid.
func parseTariff(data string) (int, *int64, error) {
	rest := strings.TrimPrefix(data, application.PrefixTariff)
	renewal := strings.HasSuffix(rest, application.SuffixRenewal)
	rest = strings.TrimSuffix(rest, application.SuffixRenewal)

	parts := strings.Split(rest, "_")
	months, err := strconv.Atoi(parts[0])
	if err != nil || months <= 0 {
		return 0, nil, domain.ErrInvalidArgument
	}
	switch {
	case !renewal && len(parts) == 1:
		return months, nil, nil
	case renewal && len(parts) == 2:
		cid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, nil, domain.ErrInvalidArgument
		}
		return months, &cid, nil
	}
	return 0, nil, domain.ErrInvalidArgument
}

func fullName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
