package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*TelegramInvoiceGateway)(nil)

// Sender posts a prepared Bot API payload.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramInvoiceGateway issues invoices through Telegram Payments. The
// provider receives a fiscal receipt in provider_data when enabled.
type TelegramInvoiceGateway struct {
	sender Sender
	cfg    config.PaymentConfig
	log    *zerolog.Logger
}

func NewTelegramInvoiceGateway(sender Sender, cfg config.PaymentConfig, logger *zerolog.Logger) (*TelegramInvoiceGateway, error) {
	if sender == nil {
		return nil, errors.New("invoice sender is nil")
	}
	if cfg.ProviderToken == "" {
		return nil, errors.New("payment provider token is empty")
	}
	l := logger.With().Str("component", "telegram_invoice").Logger()
	return &TelegramInvoiceGateway{sender: sender, cfg: cfg, log: &l}, nil
}

func (g *TelegramInvoiceGateway) Name() string { return "telegram" }

type receiptAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type receiptItem struct {
	Description    string        `json:"description"`
	Quantity       int           `json:"quantity"`
	Amount         receiptAmount `json:"amount"`
	VATCode        int           `json:"vat_code"`
	PaymentMode    string        `json:"payment_mode"`
	PaymentSubject string        `json:"payment_subject"`
}

type receiptCustomer struct {
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

type receipt struct {
	Customer      receiptCustomer `json:"customer"`
	Items         []receiptItem   `json:"items"`
	TaxSystemCode int             `json:"tax_system_code"`
}

type providerData struct {
	Receipt receipt `json:"receipt"`
}

// ProviderData renders the receipt JSON for intent.
func (g *TelegramInvoiceGateway) ProviderData(intent model.PaymentIntent) (string, error) {
	currency := intent.Currency
	if currency == "" {
		currency = g.cfg.Currency
	}
	minor := intent.AmountMinor()
	pd := providerData{Receipt: receipt{
		Customer: receiptCustomer{
			FullName: intent.Customer.FullName,
			Phone:    intent.Customer.Phone,
			Email:    intent.Customer.Email,
		},
		Items: []receiptItem{{
			Description:    intent.Description,
			Quantity:       1,
			Amount:         receiptAmount{Value: fmt.Sprintf("%d.%02d", minor/100, minor%100), Currency: currency},
			VATCode:        g.cfg.VATCode,
			PaymentMode:    "full_payment",
			PaymentSubject: "commodity",
		}},
		TaxSystemCode: g.cfg.TaxSystemCode,
	}}
	b, err := json.Marshal(pd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (g *TelegramInvoiceGateway) SendInvoice(ctx context.Context, chatID int64, intent model.PaymentIntent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if intent.Amount <= 0 {
		return 0, fmt.Errorf("invoice amount must be positive, got %d", intent.Amount)
	}
	currency := intent.Currency
	if currency == "" {
		currency = g.cfg.Currency
	}
	prices := []tgbotapi.LabeledPrice{{Label: intent.Title, Amount: int(intent.AmountMinor())}}
	inv := tgbotapi.NewInvoice(chatID, intent.Title, intent.Description, intent.Payload, g.cfg.ProviderToken, "", currency, prices)
	inv.SuggestedTipAmounts = []int{}

	if g.cfg.Receipt {
		data, err := g.ProviderData(intent)
		if err != nil {
			return 0, fmt.Errorf("build receipt: %w", err)
		}
		inv.ProviderData = data
	}

	msg, err := g.sender.Send(inv)
	if err != nil {
		g.log.Error().Err(err).Int64("chat_id", chatID).Int("amount", intent.Amount).Msg("failed to send invoice")
		return 0, err
	}
	return msg.MessageID, nil
}
