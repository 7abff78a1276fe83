package main

import (
	"encoding/json"
	"net/http"

	"chatrelay/internal/metrics"
	"chatrelay/internal/service"
	"chatrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// metricsResponse is the registry snapshot plus the live presence count, which
// the relay only publishes as a gauge on connect and maintenance ticks.
type metricsResponse struct {
	metrics.Snapshot
	OnlineUsers int `json:"online_users"`
}

// handleMetrics serves the in-process registry. ?prefix= keeps only metrics
// whose name starts with the given string, e.g. prefix=relay_.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := metricsResponse{Snapshot: metrics.GetSnapshot()}
		if prefix := r.URL.Query().Get("prefix"); prefix != "" {
			resp.Snapshot = resp.Snapshot.WithPrefix(prefix)
		}
		if s.deps.Presence != nil {
			resp.OnlineUsers = len(s.deps.Presence.Online())
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusOK)

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			info := tracing.GetRequestInfo(r.Context())
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
			}).WithError(err).Error("Failed to encode metrics response")
		}
	}
}
