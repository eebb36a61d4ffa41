package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.VpnConfigRepository = (*vpnConfigRepo)(nil)

const claimAttempts = 3

type vpnConfigRepo struct{ pool *pgxpool.Pool }

func NewVpnConfigRepo(pool *pgxpool.Pool) *vpnConfigRepo {
	return &vpnConfigRepo{pool: pool}
}

const vpnConfigColumns = `id, file_id, file_name, path, assigned, expires_at, device, user_id, created_at`

func scanVpnConfig(row pgx.Row) (*model.VpnConfig, error) {
	c := &model.VpnConfig{}
	var device string
	if err := row.Scan(&c.ID, &c.FileID, &c.FileName, &c.Path, &c.Assigned, &c.ExpiresAt, &device, &c.UserID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Device = model.Device(device)
	return c, nil
}

func (r *vpnConfigRepo) CreateIfAbsent(ctx context.Context, tx repository.Tx, c *model.VpnConfig) (bool, error) {
	const q = `
INSERT INTO vpn_configs (file_id, file_name, path, assigned)
VALUES ($1,$2,$3,FALSE)
ON CONFLICT (file_id) DO NOTHING
RETURNING id, created_at;`
	row, err := pickRow(ctx, r.pool, tx, q, c.FileID, c.FileName, c.Path)
	if err != nil {
		return false, err
	}
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, mapErr(err)
	}
	return true, nil
}

func (r *vpnConfigRepo) ExistsByFileID(ctx context.Context, tx repository.Tx, fileID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM vpn_configs WHERE file_id=$1);`, fileID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *vpnConfigRepo) CountFree(ctx context.Context, tx repository.Tx) (int, error) {
	return r.count(ctx, tx, `SELECT COUNT(*) FROM vpn_configs WHERE NOT assigned;`)
}

func (r *vpnConfigRepo) CountAssigned(ctx context.Context, tx repository.Tx) (int, error) {
	return r.count(ctx, tx, `SELECT COUNT(*) FROM vpn_configs WHERE assigned;`)
}

func (r *vpnConfigRepo) count(ctx context.Context, tx repository.Tx, q string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

// ClaimFree picks the oldest unassigned row, skipping rows another transaction
// is claiming, and assigns it in the same statement.
func (r *vpnConfigRepo) ClaimFree(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, device model.Device) (*model.VpnConfig, error) {
	const q = `
UPDATE vpn_configs
   SET assigned = TRUE,
       user_id = $1,
       expires_at = $2,
       device = $3
 WHERE id = (
        SELECT id FROM vpn_configs
         WHERE NOT assigned
         ORDER BY id
         LIMIT 1
         FOR UPDATE SKIP LOCKED)
   AND NOT assigned
RETURNING ` + vpnConfigColumns + `;`
	// A row committed by a concurrent claimer between snapshot and lock drops out
	// of the subquery without a replacement, so an empty result is retried while
	// free rows remain.
	for attempt := 0; attempt < claimAttempts; attempt++ {
		row, err := pickRow(ctx, r.pool, tx, q, userID, model.TruncateDay(expiresAt), string(device))
		if err != nil {
			return nil, err
		}
		c, err := scanVpnConfig(row)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, mapErr(err)
		}
		free, err := r.CountFree(ctx, tx)
		if err != nil {
			return nil, err
		}
		if free == 0 {
			break
		}
	}
	return nil, domain.ErrNoFreeConfigs
}

func (r *vpnConfigRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.VpnConfig, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(`SELECT `+vpnConfigColumns+` FROM vpn_configs WHERE id=$1`, tx), id)
	if err != nil {
		return nil, err
	}
	c, err := scanVpnConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *vpnConfigRepo) FindByOwner(ctx context.Context, tx repository.Tx, userID int64) ([]*model.VpnConfig, error) {
	return r.list(ctx, tx, `SELECT `+vpnConfigColumns+` FROM vpn_configs WHERE user_id=$1 ORDER BY id;`, userID)
}

func (r *vpnConfigRepo) FindExpired(ctx context.Context, tx repository.Tx, day time.Time) ([]*model.VpnConfig, error) {
	return r.list(ctx, tx, `SELECT `+vpnConfigColumns+` FROM vpn_configs WHERE assigned AND expires_at < $1 ORDER BY id;`, model.TruncateDay(day))
}

func (r *vpnConfigRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.VpnConfig, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.VpnConfig
	for rows.Next() {
		c, err := scanVpnConfig(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *vpnConfigRepo) UpdateExpiry(ctx context.Context, tx repository.Tx, id int64, expiresAt time.Time) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE vpn_configs SET expires_at=$2 WHERE id=$1 AND assigned;`, id, model.TruncateDay(expiresAt))
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
