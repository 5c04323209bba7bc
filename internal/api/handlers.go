package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/metrics"
	"github.com/sells-group/gmprocess-cli/internal/metrics/combination"
	"github.com/sells-group/gmprocess-cli/internal/metrics/reduction"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/source"
	"github.com/sells-group/gmprocess-cli/internal/store"
)

const maxBodyBytes = 16 << 20

type eventsResponse struct {
	Agency string                 `json:"agency"`
	Origin model.Origin           `json:"origin"`
	Events []model.CandidateEvent `json:"events"`
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	agency := chi.URLParam(r, "agency")
	origin, tol, solve, err := parseEventQuery(r, h.tol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.registry.Open(agency, origin, tol)
	if err != nil {
		if _, getErr := h.registry.Get(agency); getErr != nil {
			writeError(w, http.StatusNotFound, getErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	groups, err := f.MatchingEvents(r.Context(), solve)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	events := source.Flatten(groups)
	if events == nil {
		events = []model.CandidateEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Agency: agency, Origin: f.Origin(), Events: events})
}

// parseEventQuery reads time, lat, lon, depth and mag, plus optional radius
// (km), dt (seconds) and solve.
func parseEventQuery(r *http.Request, defaults model.SearchTolerances) (model.Origin, model.SearchTolerances, bool, error) {
	q := r.URL.Query()
	tol := defaults

	t, err := time.Parse(time.RFC3339Nano, q.Get("time"))
	if err != nil {
		return model.Origin{}, tol, false, eris.Errorf("time must be RFC 3339: %q", q.Get("time"))
	}

	vals := make(map[string]float64, 5)
	for _, name := range []string{"lat", "lon", "depth", "mag"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			return model.Origin{}, tol, false, eris.Errorf("%s must be a number", name)
		}
		vals[name] = v
	}
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Origin{}, tol, false, eris.New("radius must be a number")
		}
		tol.RadiusKM = v
	}
	if s := q.Get("dt"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Origin{}, tol, false, eris.New("dt must be a number")
		}
		tol.TimeWindow = time.Duration(v * float64(time.Second))
	}
	solve := true
	if s := q.Get("solve"); s != "" {
		solve, err = strconv.ParseBool(s)
		if err != nil {
			return model.Origin{}, tol, false, eris.New("solve must be a boolean")
		}
	}

	origin := model.NewOrigin(t, vals["lat"], vals["lon"], vals["depth"], vals["mag"])
	return origin, tol, solve, nil
}

// combineRequest carries exactly one of Time or Frequency.
type combineRequest struct {
	Method    string                         `json:"method"`
	Time      *metrics.TimeDomainPair        `json:"time,omitempty"`
	Frequency *metrics.FrequencyDomainSeries `json:"frequency,omitempty"`
}

func (c combineRequest) input() (metrics.Input, error) {
	switch {
	case c.Time != nil && c.Frequency != nil:
		return nil, eris.New("set only one of time or frequency")
	case c.Time != nil:
		return *c.Time, nil
	case c.Frequency != nil:
		return *c.Frequency, nil
	default:
		return nil, eris.New("one of time or frequency is required")
	}
}

func (h *Handler) combine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := combination.Lookup(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := c.Combine(in)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reduceRequest struct {
	reduction.SmoothSelectParams
	Series metrics.FrequencyDomainSeries `json:"series"`
}

func (h *Handler) reduce(w http.ResponseWriter, r *http.Request) {
	var req reduceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := reduction.NewSmoothSelect(req.SmoothSelectParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	picks, err := s.Reduce(req.Series)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": s.Period(), "picks": picks})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "invalid request body")
	}
	return nil
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Agency: q.Get("agency"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("bad integer %q", s)
	}
	return n, nil
}

type runResponse struct {
	*model.Run
	Traces []model.TraceRecord `json:"traces"`
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	traces, err := h.store.ListTraces(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if traces == nil {
		traces = []model.TraceRecord{}
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Traces: traces})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
