//go:build !integration

package usecase_test

import (
	"context"
	"testing"

	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/usecase"
)

func TestStatsUseCase_Totals(t *testing.T) {
	ctx := context.Background()
	users := NewMockUserRepo()
	users.Seed(&model.User{TelegramID: 1})
	users.Seed(&model.User{TelegramID: 2})
	configs := NewMockVpnConfigRepo()
	configs.AddFree(3)
	if _, err := configs.ClaimFree(ctx, nil, 1, fixedNow, model.DeviceIOS); err != nil {
		t.Fatal(err)
	}
	invoices := NewMockInvoiceRepo()
	_ = invoices.Replace(ctx, nil, model.NewInvoice(2, model.DeviceMac))

	st, err := usecase.NewStatsUseCase(users, configs, invoices, newTestLogger()).Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	want := model.Stats{Users: 2, FreeConfigs: 2, AssignedConfigs: 1, LiveInvoices: 1}
	if *st != want {
		t.Errorf("got %+v, want %+v", *st, want)
	}
}
