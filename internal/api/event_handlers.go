package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
	"github.com/meshcom-gateway/meshcom-server/internal/storage"
)

// HandleListEvents lists gateway events
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event log is not configured")
		return
	}

	var filters storage.EventLogFilters
	if v := r.URL.Query().Get("type"); v != "" {
		t := models.EventType(strings.ToUpper(v))
		filters.Type = &t
	}
	if v := r.URL.Query().Get("level"); v != "" {
		l := models.EventLevel(strings.ToUpper(v))
		filters.Level = &l
	}

	var err error
	if filters.StartTime, err = timeParam(r, "start"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid start time")
		return
	}
	if filters.EndTime, err = timeParam(r, "end"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid end time")
		return
	}

	limit, offset := pagination(r)

	events, total, err := s.store.ListEventLogs(r.Context(), filters, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list events")
		s.respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
