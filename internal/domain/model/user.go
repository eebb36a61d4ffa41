package model

import (
	"regexp"
	"strings"
	"time"

	"vpn-subscription-bot/internal/domain"
)

var (
	phoneRe = regexp.MustCompile(`^\+7\d{10}$`)
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// User is a Telegram customer. Contact fields, the referrer and the last payment
// time are optional and stay nil until the corresponding step sets them.
type User struct {
	TelegramID        int64
	Username          string
	Phone             *string
	Email             *string
	LastPaymentAt     *time.Time
	SubscribeDaysLeft int
	ReferrerID        *int64
	IsTrial           bool
	IsActive          bool
	Credits           int
	CreatedAt         time.Time
}

func NewUser(tgID int64, username string, referrerID *int64) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if referrerID != nil && *referrerID == tgID {
		return nil, domain.ErrSelfReferral
	}
	return &User{
		TelegramID: tgID,
		Username:   strings.TrimSpace(username),
		ReferrerID: referrerID,
		IsTrial:    true,
		CreatedAt:  time.Now(),
	}, nil
}

// HasContacts reports whether both phone and email are on file.
func (u *User) HasContacts() bool {
	return u != nil && u.Phone != nil && *u.Phone != "" && u.Email != nil && *u.Email != ""
}

func (u *User) HasReferrer() bool { return u != nil && u.ReferrerID != nil }

// SetContacts validates and stores both contact fields.
func (u *User) SetContacts(phone, email string) error {
	if err := ValidatePhone(phone); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	u.Phone = &phone
	u.Email = &email
	return nil
}

// AddCredits changes the balance by delta and refuses to go negative.
func (u *User) AddCredits(delta int) error {
	if u.Credits+delta < 0 {
		return domain.ErrInvalidArgument
	}
	u.Credits += delta
	return nil
}

func ValidatePhone(s string) error {
	if !phoneRe.MatchString(s) {
		return domain.ErrInvalidPhone
	}
	return nil
}

func ValidateEmail(s string) error {
	if !emailRe.MatchString(s) {
		return domain.ErrInvalidEmail
	}
	return nil
}
