package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/accessguard-core/internal/audit"
	"github.com/nerrad567/accessguard-core/internal/card"
)

// Log listing bounds.
const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// addCardRequest is the body of POST /cards.
type addCardRequest struct {
	CardID      string `json:"card_id"`
	Description string `json:"description"`
}

// handleListCards returns every registered card.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.tracker.ListCards(r.Context())
	if err != nil {
		s.logger.Error("listing cards failed", "error", err)
		writeInternalError(w, "failed to list cards")
		return
	}
	if cards == nil {
		cards = []card.Card{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cards,
		"count": len(cards),
	})
}

// handleAddCard registers a card. The registry change triggers a card_add
// backup exactly as an MQTT add_card command does.
func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	var req addCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CardID == "" {
		writeBadRequest(w, "card_id is required")
		return
	}

	if err := s.tracker.AddCard(r.Context(), req.CardID, req.Description); err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("adding card failed", "card_id", req.CardID, "error", err)
			writeInternalError(w, "failed to add card")
		}
		return
	}
	s.recordAudit(r, audit.ActionCardAdd, req.CardID, nil)

	detail, err := s.tracker.CardDetail(r.Context(), req.CardID)
	if err != nil {
		s.logger.Error("reading new card failed", "card_id", req.CardID, "error", err)
		writeJSON(w, http.StatusCreated, map[string]any{"card_id": req.CardID})
		return
	}
	writeJSON(w, http.StatusCreated, detail.Card)
}

// handleGetCard returns a card with its ten most recent access log entries.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := s.tracker.CardDetail(r.Context(), id)
	if err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("reading card failed", "card_id", id, "error", err)
			writeInternalError(w, "failed to read card")
		}
		return
	}
	if detail.RecentAccess == nil {
		detail.RecentAccess = []card.AccessLogEntry{}
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleRemoveCard deletes a card.
func (s *Server) handleRemoveCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.tracker.RemoveCard(r.Context(), id); err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("removing card failed", "card_id", id, "error", err)
			writeInternalError(w, "failed to remove card")
		}
		return
	}
	s.recordAudit(r, audit.ActionCardRemove, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListLogs returns access log entries newest first.
//
// Query parameters: uid, since (RFC 3339), limit (default 100, max 1000).
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
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

	logs, err := s.tracker.ListLogs(r.Context(), card.LogFilter{
		UID:   r.URL.Query().Get("uid"),
		Since: since,
		Limit: limit,
	})
	if err != nil {
		s.logger.Error("listing access logs failed", "error", err)
		writeInternalError(w, "failed to list access logs")
		return
	}
	if logs == nil {
		logs = []card.AccessLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// parseSince reads the optional "since" query parameter.
func parseSince(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("since must be an RFC 3339 timestamp")
	}
	return t, nil
}

// parseLimit reads the optional "limit" query parameter, clamped to max.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}
