package redis

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.ReminderQueue = (*ReminderQueue)(nil)

const reminderKey = "reminders:due"

// ReminderQueue keeps follow-up reminders in a sorted set scored by due time.
type ReminderQueue struct {
	client RedisClient
}

func NewReminderQueue(client RedisClient) *ReminderQueue {
	return &ReminderQueue{client: client}
}

func (q *ReminderQueue) Schedule(ctx context.Context, r *model.Reminder) error {
	if r.ID == "" {
		r.ID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, reminderKey, float64(r.DueAt.Unix()), string(data))
}

// PopDue only returns reminders this caller managed to remove, so concurrent
// pollers never deliver the same reminder twice.
func (q *ReminderQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]*model.Reminder, error) {
	members, err := q.client.ZRangeByScore(ctx, reminderKey, float64(now.Unix()), int64(limit))
	if err != nil {
		return nil, err
	}
	var out []*model.Reminder
	for _, m := range members {
		n, err := q.client.ZRem(ctx, reminderKey, m)
		if err != nil {
			return out, err
		}
		if n == 0 {
			continue
		}
		var r model.Reminder
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}
