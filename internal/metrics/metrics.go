package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simhub_poll_cycles_total",
			Help: "Poll cycle outcomes by result",
		},
		[]string{"result"}, // published|failed|skipped
	)
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simhub_api_requests_total",
			Help: "Remote API calls by operation and result",
		},
		[]string{"op", "result"}, // ok|error
	)
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simhub_commands_total",
			Help: "Host platform commands by name and result",
		},
		[]string{"command", "result"}, // success|failure
	)
	FleetSims = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simhub_fleet_sims",
			Help: "SIM count by classification in the latest snapshot",
		},
		[]string{"class"}, // active|inactive
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		PollCyclesTotal,
		APIRequestsTotal,
		CommandsTotal,
		FleetSims,
	)
}
