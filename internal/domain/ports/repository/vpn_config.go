package repository

import (
	"context"
	"time"

	"vpn-subscription-bot/internal/domain/model"
)

// -----------------------------
// VPN configurations
// -----------------------------

type VpnConfigRepository interface {
	// CreateIfAbsent inserts an unassigned configuration unless its file id is known.
	// It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, tx Tx, c *model.VpnConfig) (bool, error)
	ExistsByFileID(ctx context.Context, tx Tx, fileID string) (bool, error)
	CountFree(ctx context.Context, tx Tx) (int, error)
	CountAssigned(ctx context.Context, tx Tx) (int, error)
	// ClaimFree atomically assigns one unassigned configuration to userID and
	// returns it, or domain.ErrNoFreeConfigs when none is left.
	ClaimFree(ctx context.Context, tx Tx, userID int64, expiresAt time.Time, device model.Device) (*model.VpnConfig, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.VpnConfig, error)
	FindByOwner(ctx context.Context, tx Tx, userID int64) ([]*model.VpnConfig, error)
	UpdateExpiry(ctx context.Context, tx Tx, id int64, expiresAt time.Time) error
	// FindExpired lists assigned configurations whose expiry date is before day.
	FindExpired(ctx context.Context, tx Tx, day time.Time) ([]*model.VpnConfig, error)
}
