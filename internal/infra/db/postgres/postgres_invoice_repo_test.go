//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
)

func TestInvoiceRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewInvoiceRepo(testPool)
	users := NewUserRepo(testPool, nil)

	t.Run("should keep at most one live invoice per user", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser(5, "u", nil)
		_ = users.Save(ctx, nil, u)

		first := model.NewInvoice(5, model.DeviceIOS)
		first.SetPlan(1)
		if err := repo.Replace(ctx, nil, first); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
		second := model.NewInvoice(5, model.DeviceWindows)
		second.SetPlan(12)
		if err := repo.Replace(ctx, nil, second); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
		if n, _ := repo.CountInvoices(ctx, nil); n != 1 {
			t.Fatalf("expected 1 live invoice, got %d", n)
		}
		got, err := repo.FindByUser(ctx, nil, 5)
		if err != nil || got.Device != model.DeviceWindows || got.Amount != 2299 {
			t.Errorf("unexpected invoice %+v (%v)", got, err)
		}

		got.UseCredits = true
		_ = got.SetQuantity(3)
		got.MarkPaid(time.Now())
		if err := repo.Update(ctx, nil, got); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		again, _ := repo.FindByUser(ctx, nil, 5)
		if !again.UseCredits || again.Quantity != 3 || !again.Paid || again.PaidAt == nil {
			t.Errorf("update not persisted: %+v", again)
		}
	})

	t.Run("should delete idempotently", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser(6, "u", nil)
		_ = users.Save(ctx, nil, u)
		_ = repo.Replace(ctx, nil, model.NewInvoice(6, model.DeviceMac))

		if err := repo.DeleteByUser(ctx, nil, 6); err != nil {
			t.Fatalf("DeleteByUser failed: %v", err)
		}
		if err := repo.DeleteByUser(ctx, nil, 6); err != nil {
			t.Fatalf("second DeleteByUser failed: %v", err)
		}
		if _, err := repo.FindByUser(ctx, nil, 6); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should refuse row locks outside a transaction", func(t *testing.T) {
		if _, err := repo.FindByUserForUpdate(ctx, nil, 6); !errors.Is(err, domain.ErrInvalidExecContext) {
			t.Errorf("expected ErrInvalidExecContext, got %v", err)
		}
	})
}
