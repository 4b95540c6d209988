package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sosodev/duration"
	"go.uber.org/zap"

	"wxaloft/internal/escape"
	"wxaloft/internal/storage"
)

const (
	defaultSince = "PT2H"
	maxSince     = 6 * time.Hour

	localLayout = "2006-01-02T15:04:05-0700"
	utcLayout   = "2006-01-02T15:04:05Z"
)

// observationJSON fixes the JSON type of every column.
type observationJSON struct {
	Received    string   `json:"received"`
	Observed    string   `json:"observed"`
	Frequency   float64  `json:"frequency"`
	Altitude    int      `json:"altitude"`
	WindSpeed   *int     `json:"wind_speed"`
	WindDir     *int     `json:"wind_dir"`
	Temperature *float64 `json:"temperature"`
	Source      string   `json:"source"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
}

// timeFormat renders timestamps in one zone.
type timeFormat struct {
	loc    *time.Location
	layout string
}

func (f timeFormat) format(t time.Time) string {
	return t.In(f.loc).Format(f.layout)
}

// handleObservations serves GET /obs?area=&zone=&since=.
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	if !q.Has("area") {
		writeError(w, http.StatusBadRequest, "missing area= parameter")
		return
	}
	area, err := s.store.LookupArea(ctx, q.Get("area"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Warn("unknown area", zap.String("area", escape.Quote(q.Get("area"))))
		writeError(w, http.StatusBadRequest, "unknown area")
		return
	case err != nil:
		s.log.Error("unable to resolve area", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to resolve area")
		return
	}

	tf, ok := s.zoneFormat(q.Get("zone"), area)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown zone")
		return
	}

	raw := defaultSince
	if q.Has("since") {
		raw = q.Get("since")
	}
	d, err := duration.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration")
		return
	}
	back := d.ToTimeDuration()
	if back > maxSince {
		writeError(w, http.StatusBadRequest, "excessive duration")
		return
	}

	obs, err := s.store.ObservationsForArea(ctx, area.ID, s.now().Add(-back))
	if err != nil {
		s.log.Error("unable to get observations", zap.Int64("area_id", area.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to get observations")
		return
	}

	out := make([]observationJSON, 0, len(obs))
	for _, o := range obs {
		out = append(out, observationJSON{
			Received:    tf.format(o.Received),
			Observed:    tf.format(o.Observed),
			Frequency:   o.Frequency,
			Altitude:    o.Altitude,
			WindSpeed:   o.WindSpeed,
			WindDir:     o.WindDirection,
			Temperature: o.Temperature,
			Source:      o.Source,
			Latitude:    o.Latitude,
			Longitude:   o.Longitude,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// zoneFormat picks the output zone: the area's own zone for "local" or
// nothing, UTC for "UTC" or "GMT", otherwise an IANA zone name.
func (s *Server) zoneFormat(zone string, area storage.Area) (timeFormat, bool) {
	switch zone {
	case "", "local":
		loc, err := time.LoadLocation(area.Timezone)
		if err != nil {
			s.log.Warn("area has an unknown timezone, using UTC",
				zap.String("area", area.Name), zap.String("timezone", area.Timezone))
			loc = time.UTC
		}
		return timeFormat{loc: loc, layout: localLayout}, true
	case "UTC", "GMT":
		return timeFormat{loc: time.UTC, layout: utcLayout}, true
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return timeFormat{}, false
	}
	return timeFormat{loc: loc, layout: localLayout}, true
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
