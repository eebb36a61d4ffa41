//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/model"
)

type captureSender struct {
	sent []tgbotapi.Chattable
}

func (c *captureSender) Send(ch tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.sent = append(c.sent, ch)
	return tgbotapi.Message{MessageID: 77}, nil
}

func testIntent() model.PaymentIntent {
	return model.PaymentIntent{
		Title:       "Оплата VPN",
		Description: "90 дней подписки - 649 рублей",
		Payload:     "7_2024-05-10 12-00-00_0",
		Amount:      649,
		Currency:    "RUB",
		Customer:    model.Customer{FullName: "Ivan Petrov", Phone: "+79990000000", Email: "a@b.ru"},
	}
}

func TestTelegramInvoiceGateway(t *testing.T) {
	logger := zerolog.Nop()
	cfg := config.PaymentConfig{ProviderToken: "tok", Currency: "RUB", Receipt: true, VATCode: 1, TaxSystemCode: 1}

	t.Run("should send an invoice in kopecks with a receipt", func(t *testing.T) {
		s := &captureSender{}
		g, err := NewTelegramInvoiceGateway(s, cfg, &logger)
		require.NoError(t, err)

		id, err := g.SendInvoice(context.Background(), 7, testIntent())
		require.NoError(t, err)
		assert.Equal(t, 77, id)

		inv := s.sent[0].(tgbotapi.InvoiceConfig)
		assert.Equal(t, 64900, inv.Prices[0].Amount)
		assert.Equal(t, "7_2024-05-10 12-00-00_0", inv.Payload)
		assert.Equal(t, "tok", inv.ProviderToken)

		var pd map[string]any
		require.NoError(t, json.Unmarshal([]byte(inv.ProviderData), &pd))
		rc := pd["receipt"].(map[string]any)
		assert.Equal(t, "+79990000000", rc["customer"].(map[string]any)["phone"])
		item := rc["items"].([]any)[0].(map[string]any)
		assert.Equal(t, "649.00", item["amount"].(map[string]any)["value"])
		assert.Equal(t, "full_payment", item["payment_mode"])
	})

	t.Run("should omit the receipt when disabled", func(t *testing.T) {
		s := &captureSender{}
		noReceipt := cfg
		noReceipt.Receipt = false
		g, err := NewTelegramInvoiceGateway(s, noReceipt, &logger)
		require.NoError(t, err)

		_, err = g.SendInvoice(context.Background(), 7, testIntent())
		require.NoError(t, err)
		assert.Empty(t, s.sent[0].(tgbotapi.InvoiceConfig).ProviderData)
	})

	t.Run("should reject a zero amount", func(t *testing.T) {
		g, err := NewTelegramInvoiceGateway(&captureSender{}, cfg, &logger)
		require.NoError(t, err)
		intent := testIntent()
		intent.Amount = 0
		_, err = g.SendInvoice(context.Background(), 7, intent)
		assert.Error(t, err)
	})

	t.Run("should require a provider token", func(t *testing.T) {
		_, err := NewTelegramInvoiceGateway(&captureSender{}, config.PaymentConfig{}, &logger)
		assert.Error(t, err)
	})
}
