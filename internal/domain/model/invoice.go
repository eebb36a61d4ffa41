package model

import (
	"time"

	"vpn-subscription-bot/internal/domain"
)

const (
	MinQuantity = 1
	MaxQuantity = 100
)

// Invoice is the in-progress purchase of one user. It is not a financial
// document: it is deleted once the payment is fulfilled.
type Invoice struct {
	ID             int64
	UserID         int64
	ConfigID       *int64 // set for renewals
	Device         Device
	Amount         int // unit price of the chosen plan
	UseCredits     bool
	Quantity       int
	DaysToIncrease int
	Paid           bool
	PaidAt         *time.Time
	CreatedAt      time.Time
}

func NewInvoice(userID int64, device Device) *Invoice {
	return &Invoice{
		UserID:    userID,
		Device:    device,
		Quantity:  1,
		CreatedAt: time.Now(),
	}
}

func (i *Invoice) IsRenewal() bool { return i.ConfigID != nil }

// SetQuantity accepts 1..100 configurations per purchase.
func (i *Invoice) SetQuantity(n int) error {
	if n < MinQuantity || n > MaxQuantity {
		return domain.ErrInvalidQuantity
	}
	i.Quantity = n
	return nil
}

// SetPlan records the tariff price and the days it buys.
func (i *Invoice) SetPlan(months int) {
	i.Amount = PriceForMonths(months)
	i.DaysToIncrease = DaysForMonths(months)
}

// Total is the price before credits.
func (i *Invoice) Total() int {
	q := i.Quantity
	if q < 1 || i.IsRenewal() {
		q = 1
	}
	return i.Amount * q
}

// Months recovers the tariff length from the stored days.
func (i *Invoice) Months() int { return i.DaysToIncrease / DaysPerMonth }

func (i *Invoice) MarkPaid(at time.Time) {
	i.Paid = true
	i.PaidAt = &at
}
