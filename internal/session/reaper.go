package session

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "alexi_live_sessions",
	Help: "Active live question sessions",
})

// StartIdleReaper runs a background goroutine that periodically closes
// sessions idle for longer than ttl, until ctx is done.
func StartIdleReaper(ctx context.Context, m *Manager, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		m.logger.Info("Idle session reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := m.CloseIdle(ttl); n > 0 {
					m.logger.Info("Idle session reaper closed sessions", "count", n)
				}
			case <-ctx.Done():
				m.logger.Info("Idle session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
