package repository

import (
	"context"

	"vpn-subscription-bot/internal/domain/model"
)

// -----------------------------
// Invoices
// -----------------------------

type InvoiceRepository interface {
	// Replace stores inv as the only live invoice of its user.
	Replace(ctx context.Context, tx Tx, inv *model.Invoice) error
	FindByUser(ctx context.Context, tx Tx, userID int64) (*model.Invoice, error)
	// FindByUserForUpdate locks the row until tx ends. tx must be a transaction.
	FindByUserForUpdate(ctx context.Context, tx Tx, userID int64) (*model.Invoice, error)
	Update(ctx context.Context, tx Tx, inv *model.Invoice) error
	DeleteByUser(ctx context.Context, tx Tx, userID int64) error
	CountInvoices(ctx context.Context, tx Tx) (int, error)
}
