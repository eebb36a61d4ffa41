package model

import "time"

// Step is the position of a user inside the purchase flow.
type Step string

const (
	StepIdle             Step = "idle"
	StepAwaitingPhone    Step = "awaiting_phone"
	StepAwaitingEmail    Step = "awaiting_email"
	StepAwaitingQuantity Step = "awaiting_quantity"
	StepChoosingPlan     Step = "choosing_plan"
	StepChoosingCredits  Step = "choosing_credits"
	StepAwaitingPayment  Step = "awaiting_payment"
)

// DefaultSessionIdle is how long an untouched session survives.
const DefaultSessionIdle = 900 * time.Second

// Session is the per-user in-progress state of the purchase flow. It is
// created on the first flow action and removed on completion, reset or expiry.
type Session struct {
	UserID       int64     `json:"user_id"`
	Step         Step      `json:"step"`
	Device       Device    `json:"device,omitempty"`
	PendingPhone string    `json:"pending_phone,omitempty"`
	MessageIDs   []int     `json:"message_ids,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func NewSession(userID int64, now time.Time, idle time.Duration) *Session {
	return &Session{
		UserID:    userID,
		Step:      StepIdle,
		StartedAt: now,
		ExpiresAt: now.Add(idle),
	}
}

// Touch pushes the deadline forward; called on every user action.
func (s *Session) Touch(now time.Time, idle time.Duration) {
	s.ExpiresAt = now.Add(idle)
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Track remembers a bot message to delete when the flow ends.
func (s *Session) Track(ids ...int) {
	for _, id := range ids {
		if id != 0 {
			s.MessageIDs = append(s.MessageIDs, id)
		}
	}
}

func (s *Session) Advance(step Step) { s.Step = step }
