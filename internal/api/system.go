package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/accessguard-core/internal/backup"
	"github.com/nerrad567/accessguard-core/internal/router"
)

// statusCheckTimeout bounds the dependency probes of GET /status.
const statusCheckTimeout = 3 * time.Second

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	Database      ComponentStatus       `json:"database"`
	MQTT          ComponentStatus       `json:"mqtt"`
	Subscriptions int                   `json:"mqtt_subscriptions"`
	Backups       *backup.Status        `json:"backups,omitempty"`
	Cards         int                   `json:"cards"`
	Logs          int                   `json:"logs"`
	Router        *router.StatsSnapshot `json:"router,omitempty"`
}

// ComponentStatus reports one dependency.
type ComponentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleHealth returns the server liveness status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus reports the store, the broker connection, the backup
// subsystem and the registry size. Overall status is "degraded" when any
// check fails; the response code stays 200 so the body is always readable.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusCheckTimeout)
	defer cancel()

	resp := StatusResponse{Status: "ok", Version: s.version}

	resp.Database = ComponentStatus{OK: true}
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			resp.Database = ComponentStatus{Error: err.Error()}
		}
	}

	if s.mqtt != nil {
		resp.Subscriptions = s.mqtt.SubscriptionCount()
	}
	if s.mqtt != nil && s.mqtt.IsConnected() {
		resp.MQTT = ComponentStatus{OK: true}
	} else {
		resp.MQTT = ComponentStatus{Error: "not connected"}
	}

	if st, err := s.backups.Status(ctx); err != nil {
		s.logger.Warn("backup status unavailable", "error", err)
		resp.Status = "degraded"
	} else {
		resp.Backups = st
	}

	cards, logs, err := s.tracker.Counts(ctx)
	if err != nil {
		s.logger.Warn("registry counts unavailable", "error", err)
		resp.Status = "degraded"
	}
	resp.Cards, resp.Logs = cards, logs

	if s.routerStats != nil {
		st := s.routerStats.Stats()
		resp.Router = &st
	}

	if !resp.Database.OK || !resp.MQTT.OK {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
