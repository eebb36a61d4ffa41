package application

import (
	"fmt"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/i18n"
)

// Callback data understood by the Telegram routes.
const (
	CbMainMenu     = "main_menu"
	CbConnectVPN   = "connect_vpn"
	CbAddDevice    = "add_device"
	CbAccount      = "account"
	CbReferral     = "referral"
	CbHelp         = "help"
	CbInstructions = "instructions"
	CbClose        = "close"
	CbUseCredits   = "use"
	CbSkipCredits  = "not use"

	PrefixChoose  = "choose_"
	PrefixTariff  = "tariff_"
	PrefixPay     = "pay_"
	PrefixDevice  = "device_"
	PrefixRenew   = "renew_"
	SuffixInstr   = "_instructions"
	SuffixRenewal = "_cid"
)

type keyboards struct {
	t          *i18n.Translator
	supportURL string
}

func inline(rows ...[]adapter.InlineButton) *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{Inline: rows}
}

func row(text, data string) []adapter.InlineButton {
	return []adapter.InlineButton{{Text: text, Data: data}}
}

func (k keyboards) mainMenuRow() []adapter.InlineButton {
	return row(k.t.T("btn.main_menu"), CbMainMenu)
}

func (k keyboards) start() *adapter.ReplyMarkup {
	return inline(
		row(k.t.T("btn.connect_vpn"), CbConnectVPN),
		row(k.t.T("btn.account"), CbAccount),
		row(k.t.T("btn.referral"), CbReferral),
		row(k.t.T("btn.help"), CbHelp),
		row(k.t.T("btn.add_device"), CbAddDevice),
	)
}

func (k keyboards) mainMenu() *adapter.ReplyMarkup {
	return inline(k.mainMenuRow())
}

func (k keyboards) chooseDevice() *adapter.ReplyMarkup {
	rows := make([][]adapter.InlineButton, 0, len(model.Devices)+1)
	for _, d := range model.Devices {
		rows = append(rows, row(k.t.T("device."+string(d)), PrefixChoose+string(d)))
	}
	return inline(append(rows, k.mainMenuRow())...)
}

// tariffs lists the plans; with a config id the buttons renew that configuration.
func (k keyboards) tariffs(configID *int64) *adapter.ReplyMarkup {
	rows := make([][]adapter.InlineButton, 0, len(model.Tariffs)+1)
	for _, tr := range model.Tariffs {
		data := fmt.Sprintf("%s%d", PrefixTariff, tr.Months)
		if configID != nil {
			data = fmt.Sprintf("%s_%d%s", data, *configID, SuffixRenewal)
		}
		rows = append(rows, row(k.t.T("btn.tariff", tr.Months, tr.Price), data))
	}
	return inline(append(rows, k.mainMenuRow())...)
}

func (k keyboards) useCredits() *adapter.ReplyMarkup {
	return inline(
		row(k.t.T("btn.use_credits"), CbUseCredits),
		row(k.t.T("btn.skip_credits"), CbSkipCredits),
		k.mainMenuRow(),
	)
}

func (k keyboards) payment(months int) *adapter.ReplyMarkup {
	return inline(
		row(k.t.T("btn.pay_card"), fmt.Sprintf("%s%d", PrefixPay, months)),
		k.mainMenuRow(),
	)
}

func (k keyboards) account(configs []*model.VpnConfig) *adapter.ReplyMarkup {
	rows := make([][]adapter.InlineButton, 0, len(configs)+1)
	for _, c := range configs {
		rows = append(rows, row(c.Label(), fmt.Sprintf("%s%d", PrefixDevice, c.ID)))
	}
	return inline(append(rows, k.mainMenuRow())...)
}

func (k keyboards) backToAccount(configID int64) *adapter.ReplyMarkup {
	return inline(
		row(k.t.T("btn.renew"), fmt.Sprintf("%s%d", PrefixRenew, configID)),
		row(k.t.T("btn.back"), CbAccount),
	)
}

func (k keyboards) help() *adapter.ReplyMarkup {
	rows := [][]adapter.InlineButton{row(k.t.T("btn.instructions"), CbInstructions)}
	if k.supportURL != "" {
		rows = append(rows, []adapter.InlineButton{{Text: k.t.T("btn.support"), URL: k.supportURL}})
	}
	return inline(append(rows, k.mainMenuRow())...)
}

func (k keyboards) getInstruction(d model.Device) *adapter.ReplyMarkup {
	return inline(row(k.t.T("btn.instruction"), string(d)+SuffixInstr))
}

func (k keyboards) closeInstruction() *adapter.ReplyMarkup {
	return inline(row(k.t.T("btn.close"), CbClose))
}

func (k keyboards) phone() *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{Reply: [][]adapter.ReplyButton{
		{{Text: k.t.T("btn.send_phone"), RequestContact: true}},
	}}
}

func (k keyboards) quantities() *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{Reply: [][]adapter.ReplyButton{
		{{Text: "1"}, {Text: "2"}},
		{{Text: "3"}, {Text: "4"}},
		{{Text: "5"}},
	}}
}

func removeKeyboard() *adapter.ReplyMarkup {
	return &adapter.ReplyMarkup{Remove: true}
}
