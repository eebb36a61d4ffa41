package repository

import (
	"context"

	"vpn-subscription-bot/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Save upserts the full user row.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	// FindByTelegramIDForUpdate locks the row until tx ends. tx must be a transaction.
	FindByTelegramIDForUpdate(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	UpdateContacts(ctx context.Context, tx Tx, tgID int64, phone, email string) error
	// AddCredits changes the balance by delta; the balance never goes below zero.
	AddCredits(ctx context.Context, tx Tx, tgID int64, delta int) error
	// DecrementSubscriptionDays subtracts one day from every user with days left.
	DecrementSubscriptionDays(ctx context.Context, tx Tx) (int64, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)
}
