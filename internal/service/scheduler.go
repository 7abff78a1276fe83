package service

import (
	"context"
	"sync"
	"time"

	"chatrelay/internal/constants"
	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"

	"github.com/sirupsen/logrus"
)

// RelayMaintainer is the part of the relay engine the scheduler drives.
type RelayMaintainer interface {
	Sweep() int
	Stats() relay.Stats
}

// Scheduler periodically evicts expired dedup markers and publishes relay
// gauges.
type Scheduler struct {
	relay    RelayMaintainer
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewScheduler(relay RelayMaintainer, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = constants.DefaultMaintenanceIntervalSec * time.Second
	}
	return &Scheduler{
		relay:    relay,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs maintenance until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting relay maintenance scheduler")

	s.runMaintenance()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runMaintenance()
		}
	}
}

// Stop ends Start. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runMaintenance() {
	evicted := s.relay.Sweep()
	stats := s.relay.Stats()

	metrics.SetGauge("relay_online_users", float64(stats.Online), nil, "Users with a live connection")
	metrics.SetGauge("relay_inflight_messages", float64(stats.InFlight), nil, "Relay attempts currently in flight")
	if evicted > 0 {
		metrics.AddToCounter("relay_dedup_evicted_total", float64(evicted), nil, "Expired dedup markers evicted")
		s.logger.WithField(LogFieldCount, evicted).Warn("Evicted expired in-flight markers")
	}

	s.logger.WithFields(logrus.Fields{
		"online":    stats.Online,
		"in_flight": stats.InFlight,
	}).Debug("Relay maintenance completed")
}
