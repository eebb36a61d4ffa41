package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vpn-subscription-bot/internal/domain"
)

const (
	CurrencyRUB         = "RUB"
	payloadTimeLayout   = "2006-01-02 15-04-05"
	MinorUnitsPerRouble = 100
)

// Customer is the buyer data printed on the fiscal receipt.
type Customer struct {
	FullName string
	Phone    string
	Email    string
}

// PaymentIntent is everything the payment gateway needs to issue an invoice.
type PaymentIntent struct {
	Title       string
	Description string
	Payload     string
	Amount      int // roubles
	Currency    string
	Customer    Customer
	Days        int
	Quantity    int
	CreditsUsed int
}

// AmountMinor is the amount in kopecks.
func (p PaymentIntent) AmountMinor() int64 { return int64(p.Amount) * MinorUnitsPerRouble }

// Payload is what travels through the gateway and comes back on confirmation.
// RemainingCredits is the balance the payer is left with after this purchase.
type Payload struct {
	UserID           int64
	CreatedAt        time.Time
	RemainingCredits int
}

// EncodePayload renders <uid>_<YYYY-MM-DD HH-MM-SS>_<remainingCredits>.
func EncodePayload(p Payload) string {
	return fmt.Sprintf("%d_%s_%d", p.UserID, p.CreatedAt.Format(payloadTimeLayout), p.RemainingCredits)
}

func DecodePayload(s string) (Payload, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return Payload{}, domain.ErrInvalidPayload
	}
	uid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || uid <= 0 {
		return Payload{}, domain.ErrInvalidPayload
	}
	ts, err := time.Parse(payloadTimeLayout, parts[1])
	if err != nil {
		return Payload{}, domain.ErrInvalidPayload
	}
	credits, err := strconv.Atoi(parts[2])
	if err != nil || credits < 0 {
		return Payload{}, domain.ErrInvalidPayload
	}
	return Payload{UserID: uid, CreatedAt: ts, RemainingCredits: credits}, nil
}

// PaymentConfirmation is the gateway's successful-payment event.
type PaymentConfirmation struct {
	UserID         int64
	ChatID         int64
	Payload        string
	TotalAmount    int64 // kopecks
	Currency       string
	ProviderCharge string
	TelegramCharge string
}

// Fulfillment describes what ConfirmPayment did, so the transport can deliver it.
type Fulfillment struct {
	UserID        int64
	Renewal       bool
	Days          int
	Device        Device
	Renewed       *VpnConfig
	Claimed       []*VpnConfig
	Shortfall     int
	PaidAmount    int
	ReferrerID    *int64
	ReferralBonus int
	// MessageIDs are the flow messages to clean up after delivery.
	MessageIDs []int
}
