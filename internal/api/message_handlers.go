package api

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/gateway"
	"github.com/meshcom-gateway/meshcom-server/internal/storage"
)

// HandleGetState returns the last accepted message; absent fields are null
func (s *RESTServer) HandleGetState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.gw.State())
}

// HandleGetRaw returns the last received datagram
func (s *RESTServer) HandleGetRaw(w http.ResponseWriter, r *http.Request) {
	raw, at := s.gw.LastRaw()
	if raw == nil {
		s.respondError(w, http.StatusNotFound, "no datagram received yet")
		return
	}

	resp := map[string]interface{}{
		"size":        len(raw),
		"received_at": at,
	}
	if utf8.Valid(raw) {
		resp["raw"] = string(raw)
	} else {
		resp["raw_bytes"] = raw
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// HandleSendMessage sends a text message into the mesh
func (s *RESTServer) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target" validate:"max=255"`
		Dst    string `json:"dst"`
		Msg    string `json:"msg"`
	}

	if !s.decodeRequest(w, r, &req) {
		return
	}

	err := s.gw.SendMessage(req.Target, req.Dst, req.Msg)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrInvalidArgument):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, gateway.ErrTransportUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		log.Error().Err(err).Str("dst", req.Dst).Msg("Failed to send message")
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "sent",
		"dst":    req.Dst,
	})
}

// HandleListMessages lists the message history
func (s *RESTServer) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "message history is not configured")
		return
	}

	filters := storage.MessageFilters{
		Source:      stringParam(r, "src"),
		Destination: stringParam(r, "dst"),
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

	messages, total, err := s.store.ListMessages(r.Context(), filters, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list messages")
		s.respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"total":    total,
	})
}

// HandleGetMessage returns one stored message
func (s *RESTServer) HandleGetMessage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "message history is not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	msg, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "message not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to get message")
		return
	}

	s.respondJSON(w, http.StatusOK, msg)
}
