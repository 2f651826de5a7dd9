package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aaronlmathis/homemonitor/internal/registry"
	"github.com/aaronlmathis/homemonitor/internal/series"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ChannelSummary is the API view of a registered channel. The read API
// key stays server-side; clients only ever see channel identity and the
// latest refresh status.
type ChannelSummary struct {
	Name      string                `json:"name"`
	ID        int                   `json:"channel"`
	Valid     bool                  `json:"valid"`
	LastError string                `json:"last_error,omitempty"`
	Status    *series.ChannelStatus `json:"status,omitempty"`
}

// ChannelRequest is the write payload for adding or updating a channel
type ChannelRequest struct {
	Name   string `json:"name"`
	ID     int    `json:"channel"`
	APIKey string `json:"key"`
}

func (s *Server) channelSummary(ch registry.Channel) ChannelSummary {
	summary := ChannelSummary{
		Name: ch.Name,
		ID:   ch.ID,
	}

	if status, ok := s.store.GetChannelStatus(ch.ID); ok {
		summary.Valid = status.Valid
		summary.LastError = status.LastError
		summary.Status = &status
	}

	return summary
}

// channelIDParam parses the {channelID} URL parameter. A write of the
// error response has already happened when ok is false.
func (s *Server) channelIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "channelID")

	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "channel id must be a positive integer"})
		return 0, false
	}

	return id, true
}

// handleListChannels handles GET /api/v1/channels
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.registry.List()

	summaries := make([]ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		summaries = append(summaries, s.channelSummary(ch))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"channels": summaries,
		"count":    len(summaries),
		"limit":    s.config.Channels.MaxChannels,
	})
}

// handleGetChannel handles GET /api/v1/channels/{channelID}
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelIDParam(w, r)
	if !ok {
		return
	}

	ch, found := s.registry.Get(id)
	if !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "channel not registered"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.channelSummary(ch))
}

// handleAddChannel handles POST /api/v1/channels
func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid JSON body"})
		return
	}

	ch := registry.Channel{Name: req.Name, ID: req.ID, APIKey: req.APIKey}
	if err := s.registry.Add(ch); err != nil {
		s.respondRegistryError(w, r, err)
		return
	}

	// Pull data for the new channel right away instead of waiting for
	// the next scheduled cycle.
	s.poller.TriggerChannelRefresh(ch.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(s.channelSummary(ch))
}

// handleUpdateChannel handles PUT /api/v1/channels/{channelID}
func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelIDParam(w, r)
	if !ok {
		return
	}

	var req ChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid JSON body"})
		return
	}

	ch := registry.Channel{Name: req.Name, ID: id, APIKey: req.APIKey}
	if err := s.registry.Update(ch); err != nil {
		s.respondRegistryError(w, r, err)
		return
	}

	// The key or name may have changed, so refetch.
	s.poller.TriggerChannelRefresh(ch.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.channelSummary(ch))
}

// handleDeleteChannel handles DELETE /api/v1/channels/{channelID}
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelIDParam(w, r)
	if !ok {
		return
	}

	if err := s.registry.Remove(id); err != nil {
		s.respondRegistryError(w, r, err)
		return
	}

	removed := s.store.DeleteChannel(id)
	s.logger.Info("Deleted channel",
		zap.Int("channel", id),
		zap.Int("series_removed", removed))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"channel":        id,
		"series_removed": removed,
	})
}

func (s *Server) respondRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.sanitizer.SanitizeAndRespond(w, r, err, http.StatusNotFound)
	case errors.Is(err, registry.ErrDuplicate):
		s.sanitizer.SanitizeAndRespond(w, r, err, http.StatusConflict)
	case errors.Is(err, registry.ErrLimit):
		s.sanitizer.SanitizeAndRespond(w, r, err, http.StatusConflict)
	case errors.Is(err, registry.ErrInvalid):
		s.sanitizer.SanitizeAndRespond(w, r, err, http.StatusBadRequest)
	default:
		s.sanitizer.SanitizeAndRespond(w, r, err, http.StatusInternalServerError)
	}
}
