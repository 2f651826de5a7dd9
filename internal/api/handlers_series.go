package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aaronlmathis/homemonitor/internal/series"
	"github.com/go-chi/chi/v5"
)

// SeriesResponse carries one field's plotted points along with the
// channel's freshness flag. Points keep their contiguous X indices so a
// client can plot them directly.
type SeriesResponse struct {
	Channel int            `json:"channel"`
	Field   int            `json:"field"`
	Label   string         `json:"label"`
	Valid   bool           `json:"valid"`
	Points  []series.Point `json:"points"`
}

// BoundsResponse is the suggested axis window for one field series
type BoundsResponse struct {
	Channel int           `json:"channel"`
	Field   int           `json:"field"`
	Label   string        `json:"label"`
	Bounds  series.Bounds `json:"bounds"`
}

// NearestResponse identifies the plotted point closest to a cursor position
type NearestResponse struct {
	Channel int          `json:"channel"`
	Field   int          `json:"field"`
	Point   series.Point `json:"point"`
}

// SchedulerStatus reports the refresh loop's current state
type SchedulerStatus struct {
	State        string    `json:"state"`
	NextDeadline time.Time `json:"next_deadline"`
	Interval     string    `json:"interval"`
}

// fieldSeriesParams parses {channelID} and {field} and resolves the
// stored series. A false return means the response was already written.
func (s *Server) fieldSeriesParams(w http.ResponseWriter, r *http.Request) (int, int, *series.FieldSeries, bool) {
	id, ok := s.channelIDParam(w, r)
	if !ok {
		return 0, 0, nil, false
	}

	field, err := strconv.Atoi(chi.URLParam(r, "field"))
	if err != nil || field < 1 || field > 8 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "field must be an integer between 1 and 8"})
		return 0, 0, nil, false
	}

	fs, found := s.store.Get(series.Key(id, field))
	if !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no series for that channel and field"})
		return 0, 0, nil, false
	}

	return id, field, fs, true
}

// handleGetSeries handles GET /api/v1/channels/{channelID}/fields/{field}/series
func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	id, field, fs, ok := s.fieldSeriesParams(w, r)
	if !ok {
		return
	}

	valid := false
	if status, found := s.store.GetChannelStatus(id); found {
		valid = status.Valid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SeriesResponse{
		Channel: id,
		Field:   field,
		Label:   fs.Label(),
		Valid:   valid,
		Points:  fs.Points(),
	})
}

// handleGetBounds handles GET /api/v1/channels/{channelID}/fields/{field}/bounds
func (s *Server) handleGetBounds(w http.ResponseWriter, r *http.Request) {
	id, field, fs, ok := s.fieldSeriesParams(w, r)
	if !ok {
		return
	}

	bounds, found := fs.AxisBounds()
	if !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "series has no points"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(BoundsResponse{
		Channel: id,
		Field:   field,
		Label:   fs.Label(),
		Bounds:  bounds,
	})
}

// handleNearestPoint handles GET /api/v1/channels/{channelID}/fields/{field}/nearest?x=&y=
func (s *Server) handleNearestPoint(w http.ResponseWriter, r *http.Request) {
	id, field, fs, ok := s.fieldSeriesParams(w, r)
	if !ok {
		return
	}

	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "x and y query parameters must be numbers"})
		return
	}

	point, found := fs.NearestPoint(x, y)
	if !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no point near that position"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(NearestResponse{
		Channel: id,
		Field:   field,
		Point:   point,
	})
}

// handleSchedulerStatus handles GET /api/v1/scheduler
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SchedulerStatus{
		State:        string(s.poller.State()),
		NextDeadline: s.poller.NextDeadline(),
		Interval:     s.config.PollInterval().String(),
	})
}

// handleRefreshAll handles POST /api/v1/refresh
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	accepted := s.poller.TriggerRefresh()

	w.Header().Set("Content-Type", "application/json")
	if !accepted {
		// A refresh is already running or queued; the caller's intent
		// is satisfied either way.
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"triggered": false,
			"reason":    "refresh already in progress",
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"triggered": true})
}

// handleRefreshChannel handles POST /api/v1/channels/{channelID}/refresh
func (s *Server) handleRefreshChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelIDParam(w, r)
	if !ok {
		return
	}

	if _, found := s.registry.Get(id); !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "channel not registered"})
		return
	}

	accepted := s.poller.TriggerChannelRefresh(id)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"channel":   id,
		"triggered": accepted,
	})
}
