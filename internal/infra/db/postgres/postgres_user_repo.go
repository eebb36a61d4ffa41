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

var _ repository.UserRepository = (*userRepo)(nil)

// FieldCipher encrypts contact fields at rest. security.ContactCipher implements it.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type userRepo struct {
	pool   *pgxpool.Pool
	cipher FieldCipher
}

// NewUserRepo stores phone and email through cipher when it is non-nil.
func NewUserRepo(pool *pgxpool.Pool, cipher FieldCipher) *userRepo {
	return &userRepo{pool: pool, cipher: cipher}
}

const userColumns = `telegram_id, username, phone, email, last_payment_at, subscribe_days_left, referrer_id, is_trial, is_active, credits, created_at`

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=$2, phone=$3, email=$4, last_payment_at=$5, subscribe_days_left=$6,
  referrer_id=$7, is_trial=$8, is_active=$9, credits=$10;`

	phone, err := r.seal(u.Phone)
	if err != nil {
		return err
	}
	email, err := r.seal(u.Email)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q, u.TelegramID, u.Username, phone, email, u.LastPaymentAt,
		u.SubscribeDaysLeft, u.ReferrerID, u.IsTrial, u.IsActive, u.Credits, u.CreatedAt)
	return mapErr(err)
}

func (r *userRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return r.find(ctx, tx, `SELECT `+userColumns+` FROM users WHERE telegram_id=$1`, tgID)
}

func (r *userRepo) FindByTelegramIDForUpdate(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		return nil, domain.ErrInvalidExecContext
	}
	return r.find(ctx, tx, forUpdate(`SELECT `+userColumns+` FROM users WHERE telegram_id=$1`, tx), tgID)
}

func (r *userRepo) find(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	if err := row.Scan(&u.TelegramID, &u.Username, &u.Phone, &u.Email, &u.LastPaymentAt, &u.SubscribeDaysLeft,
		&u.ReferrerID, &u.IsTrial, &u.IsActive, &u.Credits, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if u.Phone, err = r.open(u.Phone); err != nil {
		return nil, err
	}
	if u.Email, err = r.open(u.Email); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) UpdateContacts(ctx context.Context, tx repository.Tx, tgID int64, phone, email string) error {
	p, err := r.seal(&phone)
	if err != nil {
		return err
	}
	e, err := r.seal(&email)
	if err != nil {
		return err
	}
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE users SET phone=$2, email=$3 WHERE telegram_id=$1;`, tgID, p, e)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) AddCredits(ctx context.Context, tx repository.Tx, tgID int64, delta int) error {
	const q = `UPDATE users SET credits = credits + $2 WHERE telegram_id=$1 AND credits + $2 >= 0;`
	cmd, err := execSQL(ctx, r.pool, tx, q, tgID, delta)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (r *userRepo) DecrementSubscriptionDays(ctx context.Context, tx repository.Tx) (int64, error) {
	const q = `UPDATE users SET subscribe_days_left = subscribe_days_left - 1 WHERE subscribe_days_left > 0;`
	cmd, err := execSQL(ctx, r.pool, tx, q)
	if err != nil {
		return 0, mapErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *userRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *userRepo) seal(v *string) (*string, error) {
	if v == nil || r.cipher == nil {
		return v, nil
	}
	ct, err := r.cipher.Encrypt(*v)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	return &ct, nil
}

func (r *userRepo) open(v *string) (*string, error) {
	if v == nil || r.cipher == nil {
		return v, nil
	}
	pt, err := r.cipher.Decrypt(*v)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &pt, nil
}
