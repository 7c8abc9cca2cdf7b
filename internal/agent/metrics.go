package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/status"
)

var callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "alexi_agent_call_duration_seconds",
	Help:    "Agent RPC latency by method and gRPC status code",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "code"})

func observeCall(method string, err error, elapsed time.Duration) {
	callDuration.WithLabelValues(method, status.Code(err).String()).Observe(elapsed.Seconds())
}
