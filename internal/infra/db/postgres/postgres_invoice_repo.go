package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*invoiceRepo)(nil)

type invoiceRepo struct{ pool *pgxpool.Pool }

func NewInvoiceRepo(pool *pgxpool.Pool) *invoiceRepo {
	return &invoiceRepo{pool: pool}
}

const invoiceColumns = `id, user_id, config_id, device, amount, use_credits, quantity, days_to_increase, paid, paid_at, created_at`

// Replace drops any previous invoice of the user; the unique user_id keeps at
// most one live row per user.
func (r *invoiceRepo) Replace(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	const q = `
INSERT INTO invoices (user_id, config_id, device, amount, use_credits, quantity, days_to_increase, paid, paid_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (user_id) DO UPDATE SET
  config_id=EXCLUDED.config_id, device=EXCLUDED.device, amount=EXCLUDED.amount,
  use_credits=EXCLUDED.use_credits, quantity=EXCLUDED.quantity,
  days_to_increase=EXCLUDED.days_to_increase, paid=EXCLUDED.paid,
  paid_at=EXCLUDED.paid_at, created_at=EXCLUDED.created_at
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, inv.UserID, inv.ConfigID, string(inv.Device), inv.Amount, inv.UseCredits,
		inv.Quantity, inv.DaysToIncrease, inv.Paid, inv.PaidAt, inv.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&inv.ID); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *invoiceRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Invoice, error) {
	return r.find(ctx, tx, `SELECT `+invoiceColumns+` FROM invoices WHERE user_id=$1`, userID)
}

func (r *invoiceRepo) FindByUserForUpdate(ctx context.Context, tx repository.Tx, userID int64) (*model.Invoice, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		return nil, domain.ErrInvalidExecContext
	}
	return r.find(ctx, tx, forUpdate(`SELECT `+invoiceColumns+` FROM invoices WHERE user_id=$1`, tx), userID)
}

func (r *invoiceRepo) find(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Invoice, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	inv := &model.Invoice{}
	var device string
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.ConfigID, &device, &inv.Amount, &inv.UseCredits, &inv.Quantity,
		&inv.DaysToIncrease, &inv.Paid, &inv.PaidAt, &inv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	inv.Device = model.Device(device)
	return inv, nil
}

func (r *invoiceRepo) Update(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	const q = `
UPDATE invoices SET config_id=$2, device=$3, amount=$4, use_credits=$5, quantity=$6,
  days_to_increase=$7, paid=$8, paid_at=$9
WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, inv.ID, inv.ConfigID, string(inv.Device), inv.Amount, inv.UseCredits,
		inv.Quantity, inv.DaysToIncrease, inv.Paid, inv.PaidAt)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByUser is idempotent.
func (r *invoiceRepo) DeleteByUser(ctx context.Context, tx repository.Tx, userID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM invoices WHERE user_id=$1;`, userID)
	return mapErr(err)
}

func (r *invoiceRepo) CountInvoices(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM invoices;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
