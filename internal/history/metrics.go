package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "alexi_history_entries_total",
	Help: "History entries read, by decryption outcome",
}, []string{"outcome"})
