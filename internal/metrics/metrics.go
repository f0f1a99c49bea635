package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SendOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_send_outcomes_total",
			Help: "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	DispatchCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_dispatch_cycle_seconds",
			Help:    "Duration of campaign dispatch cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	ChannelsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_channels_skipped_total",
			Help: "Campaign channels skipped during dispatch",
		},
		[]string{"reason"},
	)

	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
)

func Init() {
	prometheus.MustRegister(SendOutcomes, DispatchCycleDuration, ChannelsSkipped, RequestCount)
}
