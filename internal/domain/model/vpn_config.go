package model

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// VpnConfig is a pre-provisioned configuration file. Assigned is true exactly
// when UserID is set; both change together in Assign.
type VpnConfig struct {
	ID        int64
	FileID    string
	FileName  string
	Path      string
	Assigned  bool
	ExpiresAt *time.Time
	Device    Device
	UserID    *int64
	CreatedAt time.Time
}

// Assign binds the configuration to a user until expiresAt.
func (c *VpnConfig) Assign(userID int64, expiresAt time.Time, device Device) {
	uid := userID
	exp := TruncateDay(expiresAt)
	c.UserID = &uid
	c.Assigned = true
	c.ExpiresAt = &exp
	c.Device = device
}

// Extend pushes the expiry date forward by days. A configuration without an
// expiry date, or one already expired, is extended from today.
func (c *VpnConfig) Extend(days int, now time.Time) time.Time {
	base := TruncateDay(now)
	if c.ExpiresAt != nil && TruncateDay(*c.ExpiresAt).After(base) {
		base = TruncateDay(*c.ExpiresAt)
	}
	exp := base.AddDate(0, 0, days)
	c.ExpiresAt = &exp
	return exp
}

// DaysLeft returns whole calendar days until expiry; negative once expired.
func (c *VpnConfig) DaysLeft(now time.Time) int {
	if c.ExpiresAt == nil {
		return 0
	}
	return int(TruncateDay(*c.ExpiresAt).Sub(TruncateDay(now)).Hours() / 24)
}

func (c *VpnConfig) OwnedBy(userID int64) bool {
	return c.UserID != nil && *c.UserID == userID
}

// Label is the name shown on device buttons: <device>_<uid>_<file>.
func (c *VpnConfig) Label() string {
	uid := ""
	if c.UserID != nil {
		uid = strconv.FormatInt(*c.UserID, 10)
	}
	return string(c.Device) + "_" + uid + "_" + filepath.Base(c.FileName)
}

// PeerName is the wg-easy client name matching this file.
func (c *VpnConfig) PeerName() string {
	return strings.TrimSuffix(filepath.Base(c.FileName), filepath.Ext(c.FileName))
}

func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
