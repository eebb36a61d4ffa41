package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// ReferralOutcome tells the entry handler which referral notice to show.
type ReferralOutcome int

const (
	ReferralNone ReferralOutcome = iota
	ReferralApplied
	ReferralSelf
	ReferralAlreadySet
)

type RegisterResult struct {
	User     *model.User
	Created  bool
	Referral ReferralOutcome
}

// AccountView is the profile screen: last payment, credits and owned devices.
type AccountView struct {
	User    *model.User
	Configs []*model.VpnConfig
}

type DeviceView struct {
	Config   *model.VpnConfig
	DaysLeft int
}

// UserUseCase exposes user-related operations used by bot/admin flows.
type UserUseCase interface {
	// RegisterOrFetch creates the user on first contact and applies a referral token.
	RegisterOrFetch(ctx context.Context, tgID int64, username, refToken string) (*RegisterResult, error)
	GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error)
	Account(ctx context.Context, tgID int64) (*AccountView, error)
	Device(ctx context.Context, tgID, configID int64) (*DeviceView, error)
	ReferralLink(tgID int64) string
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users       repository.UserRepository
	configs     repository.VpnConfigRepository
	tm          repository.TransactionManager
	botUsername string
	now         func() time.Time
	log         *zerolog.Logger
}

func NewUserUseCase(
	users repository.UserRepository,
	configs repository.VpnConfigRepository,
	tm repository.TransactionManager,
	botUsername string,
	logger *zerolog.Logger,
) *userUC {
	l := logger.With().Str("component", "user_uc").Logger()
	return &userUC{
		users:       users,
		configs:     configs,
		tm:          tm,
		botUsername: strings.TrimPrefix(botUsername, "@"),
		now:         time.Now,
		log:         &l,
	}
}

// parseReferrer accepts a decimal Telegram id; anything else is ignored.
func parseReferrer(token string) (int64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (u *userUC) RegisterOrFetch(ctx context.Context, tgID int64, username, refToken string) (*RegisterResult, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	refID, validRef := parseReferrer(refToken)
	res := &RegisterResult{}
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		res.Referral = ReferralNone
		res.Created = false
		hasRef := validRef

		usr, err := u.users.FindByTelegramID(ctx, tx, tgID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if hasRef && refID == tgID {
			res.Referral = ReferralSelf
			hasRef = false
		}
		// A referrer who has not started the bot yet is still recorded; the reward
		// step skips referrers that are missing at payment time.
		if usr != nil {
			changed := false
			if username != "" && usr.Username != username {
				usr.Username = username
				changed = true
			}
			if hasRef {
				if usr.HasReferrer() {
					res.Referral = ReferralAlreadySet
				} else {
					id := refID
					usr.ReferrerID = &id
					res.Referral = ReferralApplied
					changed = true
				}
			}
			if changed {
				if err := u.users.Save(ctx, tx, usr); err != nil {
					return err
				}
			}
			res.User = usr
			return nil
		}

		var referrer *int64
		if hasRef {
			id := refID
			referrer = &id
			res.Referral = ReferralApplied
		}
		nu, err := model.NewUser(tgID, username, referrer)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		res.User = nu
		res.Created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register user %d: %w", tgID, err)
	}

	if res.Created {
		metrics.IncUsersRegistered()
		u.log.Info().Int64("tg_id", tgID).Bool("referred", res.User.HasReferrer()).Msg("user registered")
	}
	return res, nil
}

func (u *userUC) GetByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.GetByTelegramID")()
	return u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (u *userUC) Account(ctx context.Context, tgID int64) (*AccountView, error) {
	defer logging.TraceDuration(u.log, "UserUC.Account")()
	usr, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, err
	}
	cfgs, err := u.configs.FindByOwner(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, err
	}
	return &AccountView{User: usr, Configs: cfgs}, nil
}

// Device returns an owned configuration together with whole days until expiry.
func (u *userUC) Device(ctx context.Context, tgID, configID int64) (*DeviceView, error) {
	defer logging.TraceDuration(u.log, "UserUC.Device")()
	cfg, err := u.configs.FindByID(ctx, repository.NoTX, configID)
	if err != nil {
		return nil, err
	}
	if !cfg.OwnedBy(tgID) {
		return nil, domain.ErrNotOwner
	}
	days := cfg.DaysLeft(u.now())
	if days < 0 {
		days = 0
	}
	return &DeviceView{Config: cfg, DaysLeft: days}, nil
}

func (u *userUC) ReferralLink(tgID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", u.botUsername, tgID)
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.Count")()
	return u.users.CountUsers(ctx, repository.NoTX)
}
