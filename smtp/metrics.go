package smtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDeliver = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_smtp_deliver_total",
		Help: "Mail transactions, by result: ok, rejected or error.",
	},
	[]string{"result"},
)
