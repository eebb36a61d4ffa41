package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(postgresConnections, instructionCacheTotal) }

var (
	postgresConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vpnbot_postgres_connections",
			Help: "Connections of the pool holding users, invoices and the VPN config inventory.",
		},
		[]string{"state"}, // total, idle, acquired
	)

	instructionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpnbot_help_instructions_cache_total",
			Help: "Lookups of the cached help-instruction sheet by outcome.",
		},
		[]string{"result"}, // hit, miss, corrupt
	)
)

func SetPostgresConnections(total, idle, acquired int32) {
	postgresConnections.WithLabelValues("total").Set(float64(total))
	postgresConnections.WithLabelValues("idle").Set(float64(idle))
	postgresConnections.WithLabelValues("acquired").Set(float64(acquired))
}

// IncInstructionCache counts a lookup; a corrupt entry is served from the sheet like a miss.
func IncInstructionCache(result string) {
	instructionCacheTotal.WithLabelValues(norm(result)).Inc()
}
