package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/accessguard-core/internal/security"
)

// defaultEventPeriod is how far back GET /events looks without a since or
// period parameter.
const defaultEventPeriod = 24 * time.Hour

// handleListEvents returns security events newest first.
//
// Query parameters: since (RFC 3339) or period (Go duration, default 24h),
// limit (default 100, max 1000).
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	limit, err := parseLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var events []security.Event
	if !since.IsZero() {
		events, err = s.detector.EventsSince(r.Context(), since)
		if len(events) > limit {
			events = events[:limit]
		}
	} else {
		period := defaultEventPeriod
		if v := r.URL.Query().Get("period"); v != "" {
			period, err = time.ParseDuration(v)
			if err != nil || period <= 0 {
				writeBadRequest(w, "period must be a positive duration such as 24h")
				return
			}
		}
		events, err = s.detector.RecentEvents(r.Context(), period, limit)
	}
	if err != nil {
		s.logger.Error("listing security events failed", "error", err)
		writeInternalError(w, "failed to list security events")
		return
	}
	if events == nil {
		events = []security.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
