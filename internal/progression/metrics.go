package progression

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitionTotal counts NextQuestion transitions by outcome.
	transitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alexi_question_transition_total",
		Help: "Question transitions by outcome",
	}, []string{"outcome"})

	// storeWriteTotal counts engine writes by operation and result.
	storeWriteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alexi_progression_store_write_total",
		Help: "State store writes issued by the progression engine",
	}, []string{"operation", "result"})
)

func recordWrite(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeWriteTotal.WithLabelValues(operation, result).Inc()
}
