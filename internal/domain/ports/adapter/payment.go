package adapter

import (
	"context"

	"vpn-subscription-bot/internal/domain/model"
)

// PaymentGateway issues payment requests through the chat transport.
type PaymentGateway interface {
	Name() string
	// SendInvoice posts a payable invoice for intent and returns its message id.
	SendInvoice(ctx context.Context, chatID int64, intent model.PaymentIntent) (int, error)
}
