package usecase

import "time"

// Clock overrides for tests in usecase_test.

func SetPurchaseClock(uc *purchaseUC, now func() time.Time)       { uc.now = now }
func SetMaintenanceClock(uc *maintenanceUC, now func() time.Time) { uc.now = now }
func SetUserClock(uc *userUC, now func() time.Time)               { uc.now = now }
