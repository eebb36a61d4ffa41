package model

const (
	DaysPerMonth = 30
	// CreditFloor is the minimum amount that must be paid in money when credits are applied.
	CreditFloor = 100
	// ReferralRewardPercent of the paid amount goes to both the referrer and the payer.
	ReferralRewardPercent = 25
)

// Tariff is one purchasable plan.
type Tariff struct {
	Months int
	Price  int
}

var Tariffs = []Tariff{
	{Months: 1, Price: 299},
	{Months: 3, Price: 699},
	{Months: 6, Price: 1199},
	{Months: 12, Price: 2299},
}

// PriceForMonths returns the tariff price; unknown durations cost as one month.
func PriceForMonths(months int) int {
	for _, t := range Tariffs {
		if t.Months == months {
			return t.Price
		}
	}
	return Tariffs[0].Price
}

func DaysForMonths(months int) int { return months * DaysPerMonth }

// ApplyCredits spends balance against total without taking the payable amount
// below CreditFloor. It returns the amount due, the credits spent and the
// balance left.
func ApplyCredits(total, balance int) (due, used, remaining int) {
	if balance <= 0 || total <= CreditFloor {
		return total, 0, balance
	}
	if balance <= total-CreditFloor {
		return total - balance, balance, 0
	}
	used = total - CreditFloor
	return CreditFloor, used, balance - used
}

// ReferralReward is floor(paid * 25%).
func ReferralReward(paid int) int {
	if paid <= 0 {
		return 0
	}
	return paid * ReferralRewardPercent / 100
}
