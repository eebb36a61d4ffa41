package model

import "time"

// FollowUpDelay is how long after an expiry notice the final reminder fires.
const FollowUpDelay = 3 * 24 * time.Hour

// Reminder is a queued follow-up notification. Once queued it is not cancellable.
type Reminder struct {
	ID       string    `json:"id"`
	UserID   int64     `json:"user_id"`
	ConfigID int64     `json:"config_id"`
	DueAt    time.Time `json:"due_at"`
}
