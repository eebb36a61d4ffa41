package repository

import (
	"context"
	"time"

	"vpn-subscription-bot/internal/domain/model"
)

// SessionRepository keeps per-user purchase sessions.
type SessionRepository interface {
	// Get returns domain.ErrNotFound when no live session exists.
	Get(ctx context.Context, userID int64) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, userID int64) error
	// DeleteExpired removes sessions whose deadline is at or before now and returns them.
	DeleteExpired(ctx context.Context, now time.Time) ([]*model.Session, error)
}

// ReminderQueue holds follow-up notifications until they are due.
type ReminderQueue interface {
	Schedule(ctx context.Context, r *model.Reminder) error
	// PopDue removes and returns reminders due at or before now.
	PopDue(ctx context.Context, now time.Time, limit int) ([]*model.Reminder, error)
}

// InstructionCache caches the help sheet rows.
type InstructionCache interface {
	Get(ctx context.Context) ([]model.Instruction, error)
	Set(ctx context.Context, rows []model.Instruction, ttl time.Duration) error
}

// Locker serializes actions of one user across update workers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}
