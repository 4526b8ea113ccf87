package dkim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricSign = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_dkim_sign_total",
		Help: "DKIM signature attempts, by result: ok, noheaders or signfail.",
	},
	[]string{"result"},
)
