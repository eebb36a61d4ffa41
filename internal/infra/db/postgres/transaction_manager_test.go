//go:build !integration

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"

	"vpn-subscription-bot/internal/domain"
)

func TestMapErr(t *testing.T) {
	t.Run("should map missing rows and unique violations", func(t *testing.T) {
		assert.ErrorIs(t, mapErr(pgx.ErrNoRows), domain.ErrNotFound)
		assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23505"}), domain.ErrAlreadyExists)
	})

	t.Run("should keep the driver error behind ErrOperationFailed", func(t *testing.T) {
		err := mapErr(&pgconn.PgError{Code: "40001"})
		assert.ErrorIs(t, err, domain.ErrOperationFailed)
		assert.True(t, isRetryable(err))
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("should retry serialization failures and deadlocks", func(t *testing.T) {
		assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
		assert.True(t, isRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})))
	})

	t.Run("should not retry other failures", func(t *testing.T) {
		assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
		assert.False(t, isRetryable(errors.New("connection reset")))
		assert.False(t, isRetryable(domain.ErrNotFound))
	})
}
