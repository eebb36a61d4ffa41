package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsSentTotal, sessionsSweptTotal) }

var (
	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "User and operator notifications by kind and status.",
		},
		[]string{"kind", "status"},
	)

	sessionsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_swept_total",
			Help: "Purchase sessions removed after their idle deadline.",
		},
	)
)

func IncNotification(kind, status string) {
	notificationsSentTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func AddSessionsSwept(n int) {
	if n > 0 {
		sessionsSweptTotal.Add(float64(n))
	}
}
