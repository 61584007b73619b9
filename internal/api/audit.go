package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/accessguard-core/internal/audit"
)

// recordAudit appends an API-sourced entry to the audit trail. A failed
// write is logged; the request it describes has already succeeded.
func (s *Server) recordAudit(r *http.Request, action, target string, details map[string]any) {
	if s.audit == nil {
		return
	}
	e := &audit.Entry{
		Action:  action,
		Target:  target,
		Subject: subjectOf(r),
		Source:  audit.SourceAPI,
		Details: details,
	}
	// The client may hang up straight after the response; keep the write.
	if err := s.audit.Create(context.WithoutCancel(r.Context()), e); err != nil {
		s.logger.Warn("audit write failed", "action", action, "target", target, "error", err)
	}
}

// handleListAudit returns the audit trail newest first.
//
// Query parameters: action, target, limit (default 50, max 200), offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Action: q.Get("action"), Target: q.Get("target")}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit trail failed", "error", err)
		writeInternalError(w, "failed to list audit trail")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
