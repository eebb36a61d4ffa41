package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

const sessionDeadlines = "sessions:deadlines"

// sessionGrace keeps a session readable past its deadline so the sweeper can
// still see the tracked message ids before the key disappears.
const sessionGrace = time.Hour

// SessionRepo stores purchase sessions as JSON under session:<uid> and indexes
// their deadlines in a sorted set.
type SessionRepo struct {
	client RedisClient
	now    func() time.Time
}

func NewSessionRepo(client RedisClient) *SessionRepo {
	return &SessionRepo{client: client, now: time.Now}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func (s *SessionRepo) Get(ctx context.Context, userID int64) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID))
	if err != nil {
		if errors.Is(err, Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionRepo) Save(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := sess.ExpiresAt.Sub(s.now()) + sessionGrace
	if ttl <= 0 {
		ttl = sessionGrace
	}
	if err := s.client.Set(ctx, sessionKey(sess.UserID), data, ttl); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, sessionDeadlines, float64(sess.ExpiresAt.Unix()), strconv.FormatInt(sess.UserID, 10))
}

func (s *SessionRepo) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)); err != nil {
		return err
	}
	_, err := s.client.ZRem(ctx, sessionDeadlines, strconv.FormatInt(userID, 10))
	return err
}

// DeleteExpired removes sessions whose deadline passed. A session touched after
// its index entry was read is left alone.
func (s *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) ([]*model.Session, error) {
	ids, err := s.client.ZRangeByScore(ctx, sessionDeadlines, float64(now.Unix()), 500)
	if err != nil {
		return nil, err
	}
	var out []*model.Session
	for _, raw := range ids {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_, _ = s.client.ZRem(ctx, sessionDeadlines, raw)
			continue
		}
		sess, err := s.Get(ctx, uid)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			_, _ = s.client.ZRem(ctx, sessionDeadlines, raw)
			continue
		case err != nil:
			return out, err
		}
		if !sess.Expired(now) {
			continue
		}
		removed, err := s.client.ZRem(ctx, sessionDeadlines, raw)
		if err != nil {
			return out, err
		}
		if removed == 0 {
			// another sweeper got it first
			continue
		}
		if err := s.client.Del(ctx, sessionKey(uid)); err != nil {
			return out, err
		}
		out = append(out, sess)
	}
	return out, nil
}
