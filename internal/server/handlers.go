// Package server provides the HTTP server and routing for the almanac.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/almanac/internal/calendar"
	"github.com/aristath/almanac/internal/version"
)

const dateLayout = "2006-01-02"

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": version.Version,
		"service": "almanac",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// CalendarHandlers handles calendar and continuous-series HTTP requests
type CalendarHandlers struct {
	service *calendar.Service
	log     zerolog.Logger
}

// NewCalendarHandlers creates a new calendar handler
func NewCalendarHandlers(service *calendar.Service, log zerolog.Logger) *CalendarHandlers {
	return &CalendarHandlers{
		service: service,
		log:     log.With().Str("handler", "calendar").Logger(),
	}
}

// RegisterRoutes registers all calendar routes
func (h *CalendarHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/calendar", func(r chi.Router) {
		r.Get("/range", h.HandleRange)
		r.Get("/days", h.HandleDays)
		r.Get("/trading-days", h.HandleTradingDays)
	})

	r.Route("/continuous", func(r chi.Router) {
		r.Get("/series", h.HandleSeries)
		r.Get("/series/{key}/rolls", h.HandleRolls)
		r.Get("/series/{key}/cadence", h.HandleCadence)
		r.Get("/active", h.HandleActive)
		r.Get("/table", h.HandleTable)
	})
}

// HandleRange returns the date window the holiday list covers and the market
// timezone all dates are normalized into.
// GET /api/calendar/range
func (h *CalendarHandlers) HandleRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.service.ValidRange(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"start":    start.Format(dateLayout),
		"end":      end.Format(dateLayout),
		"timezone": h.service.Location().String(),
	})
}

// dayJSON is the wire form of one classified day.
type dayJSON struct {
	Date    string `json:"date"`
	Trading bool   `json:"trading"`
}

// HandleDays returns the per-day trading classification of a date range.
// GET /api/calendar/days?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *CalendarHandlers) HandleDays(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	days, err := h.service.Days(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]dayJSON, len(days))
	for i, d := range days {
		out[i] = dayJSON{Date: d.Date.Format(dateLayout), Trading: d.Trading}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from": from.Format(dateLayout),
		"to":   to.Format(dateLayout),
		"days": out,
	})
}

// HandleTradingDays returns only the trading dates of a date range.
// GET /api/calendar/trading-days?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *CalendarHandlers) HandleTradingDays(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	days, err := h.service.TradingDays(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format(dateLayout)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":  from.Format(dateLayout),
		"to":    to.Format(dateLayout),
		"count": len(out),
		"days":  out,
	})
}

// HandleSeries returns every continuous-series key in the catalog.
// GET /api/continuous/series
func (h *CalendarHandlers) HandleSeries(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.SeriesKeys(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"series": keys,
		"count":  len(keys),
	})
}

// rollJSON is the wire form of one roll history entry.
type rollJSON struct {
	Date       string `json:"date"`
	Underlying string `json:"underlying"`
}

// HandleRolls returns the roll history of one continuous series.
// GET /api/continuous/series/{key}/rolls
func (h *CalendarHandlers) HandleRolls(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	history, err := h.service.RollHistory(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]rollJSON, len(history))
	for i, entry := range history {
		out[i] = rollJSON{Date: entry.Date.Format(dateLayout), Underlying: entry.Underlying}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"series": key,
		"count":  len(out),
		"rolls":  out,
	})
}

// HandleCadence returns roll-cadence statistics of one continuous series.
// GET /api/continuous/series/{key}/cadence
func (h *CalendarHandlers) HandleCadence(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	stats, err := h.service.Cadence(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// HandleActive resolves the active underlying contracts at an instant: the
// row of the first trading day on or after it. An instant past the end of
// the requested range resolves to found=false, not an error.
// GET /api/continuous/active?at=&from=&to=&series=
func (h *CalendarHandlers) HandleActive(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	at := time.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := parseInstant(raw, h.service.Location())
		if err != nil {
			h.writeBadRequest(w, "invalid at: "+raw)
			return
		}
		at = parsed
	}

	view, err := h.service.BuildView(r.Context(), from, to, seriesParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	row, found := view.Resolve(at)
	response := map[string]interface{}{
		"at":    at.Format(time.RFC3339),
		"found": found,
	}
	if found {
		response["date"] = row.Date.Format(dateLayout)
		response["underlyings"] = row.Underlyings
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTable returns the full aligned calendar table for a range, as JSON
// or as a compact msgpack export.
// GET /api/continuous/table?from=&to=&series=&format=json|msgpack
func (h *CalendarHandlers) HandleTable(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	view, err := h.service.BuildView(r.Context(), from, to, seriesParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	snapshot := view.Snapshot()

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		h.writeJSON(w, http.StatusOK, snapshot)
	case "msgpack":
		data, err := snapshot.Encode()
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/x-msgpack")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			h.log.Error().Err(err).Msg("Failed to write msgpack response")
		}
	default:
		h.writeBadRequest(w, "invalid format: "+format)
	}
}

// parseRange reads the required from/to date parameters. On failure it has
// already written the error response and returns ok=false.
func (h *CalendarHandlers) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := h.dateParam(r, "from")
	if err != nil {
		h.writeBadRequest(w, err.Error())
		return time.Time{}, time.Time{}, false
	}
	to, err := h.dateParam(r, "to")
	if err != nil {
		h.writeBadRequest(w, err.Error())
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// dateParam parses one required YYYY-MM-DD query parameter in the market
// timezone.
func (h *CalendarHandlers) dateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, errors.New("missing required parameter: " + name)
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.service.Location())
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + ": " + raw)
	}
	return t, nil
}

// parseInstant accepts either an RFC3339 timestamp or a bare date.
func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, raw, loc)
}

// seriesParam reads the optional comma-separated series filter. Empty means
// every series in the catalog.
func seriesParam(r *http.Request) []string {
	raw := r.URL.Query().Get("series")
	if raw == "" {
		return nil
	}
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// writeError maps calendar errors onto HTTP statuses: caller mistakes are
// 400, upstream source failures are 502, everything else is 500.
func (h *CalendarHandlers) writeError(w http.ResponseWriter, err error) {
	var unknownSeries *calendar.UnknownSeriesError
	var fetchErr *calendar.FetchError
	var parseErr *calendar.ParseError

	switch {
	case errors.Is(err, calendar.ErrInvalidRange), errors.As(err, &unknownSeries):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		h.log.Warn().Err(err).Msg("Calendar source unavailable")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("Calendar request failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *CalendarHandlers) writeBadRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

func (h *CalendarHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
