//go:build !integration

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDaily_Next(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	d := Daily{Hour: 11, Minute: 40, Loc: msk}

	t.Run("should fire later the same day", func(t *testing.T) {
		now := time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC) // 09:00 MSK
		assert.Equal(t, time.Date(2024, 5, 10, 11, 40, 0, 0, msk), d.Next(now))
	})

	t.Run("should roll over to tomorrow once passed", func(t *testing.T) {
		now := time.Date(2024, 5, 10, 8, 40, 0, 0, time.UTC) // exactly 11:40 MSK
		assert.Equal(t, time.Date(2024, 5, 11, 11, 40, 0, 0, msk), d.Next(now))
	})
}

func TestEvery_Next(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(10*time.Minute), Every{Interval: 10 * time.Minute}.Next(now))
	assert.Equal(t, now.Add(time.Minute), Every{}.Next(now))
}

func TestScheduler_RunsJobs(t *testing.T) {
	logger := zerolog.Nop()
	s := NewScheduler(&logger)

	var atStart, ticked atomic.Int32
	s.Add(
		Job{Name: "feed", Trigger: Every{Interval: time.Hour}, RunAtStart: true, Fn: func(context.Context) error {
			atStart.Add(1)
			return nil
		}},
		Job{Name: "sweep", Trigger: Every{Interval: 10 * time.Millisecond}, Fn: func(context.Context) error {
			ticked.Add(1)
			panic("boom")
		}},
	)
	s.Start(context.Background())
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return ticked.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), atStart.Load())
}
