package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		purchaseStepsTotal,
		paymentsTotal,
		paymentRevenueTotal,
		referralRewardsTotal,
		configsClaimedTotal,
		configsProvisionedTotal,
		freeConfigs,
	)
}

var (
	purchaseStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_steps_total",
			Help: "Purchase flow steps by outcome.",
		},
		[]string{"step", "outcome"}, // outcome: 'ok', 'invalid', 'error'
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (initiated/precheck_ok/precheck_rejected/succeeded/failed).",
		},
		[]string{"status"},
	)

	paymentRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_revenue_rub_total",
			Help: "Confirmed revenue in roubles.",
		},
	)

	referralRewardsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_rewards_credits_total",
			Help: "Credits granted as referral rewards (both sides).",
		},
	)

	configsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpn_configs_claimed_total",
			Help: "Configurations assigned to users, by device.",
		},
		[]string{"device"},
	)

	configsProvisionedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vpn_configs_provisioned_total",
			Help: "Configurations imported by the provisioning feed.",
		},
	)

	freeConfigs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vpn_configs_free",
			Help: "Unassigned configurations at last check.",
		},
	)
)

func IncPurchaseStep(step, outcome string) {
	purchaseStepsTotal.WithLabelValues(norm(step), norm(outcome)).Inc()
}

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(roubles int) {
	if roubles > 0 {
		paymentRevenueTotal.Add(float64(roubles))
	}
}

func AddReferralReward(credits int) {
	if credits > 0 {
		referralRewardsTotal.Add(float64(credits))
	}
}

func IncConfigClaimed(device string) {
	configsClaimedTotal.WithLabelValues(norm(device)).Inc()
}

func AddConfigsProvisioned(n int) {
	if n > 0 {
		configsProvisionedTotal.Add(float64(n))
	}
}

func SetFreeConfigs(n int) {
	freeConfigs.Set(float64(n))
}
