package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// maxSettingsBody caps PUT /settings payloads. The settings document is a
// few hundred bytes; anything near the cap is a client bug.
const maxSettingsBody = 1 << 20

// parseRequest resolves period, owner, and overdue-handling query
// parameters into a forecast request. Custom start/end dates override the
// period enum; both must be present together.
func (s *Server) parseRequest(r *http.Request) (forecast.Request, error) {
	q := r.URL.Query()
	req := forecast.Request{ExcludeOverdue: s.excludeOverdue}

	startStr, endStr := q.Get("start"), q.Get("end")
	switch {
	case startStr != "" && endStr != "":
		rng, err := parseCustomRange(startStr, endStr)
		if err != nil {
			return req, err
		}
		req.Range = rng
	case startStr != "" || endStr != "":
		return req, eris.New("api: start and end must be supplied together")
	default:
		label := q.Get("period")
		if label == "" {
			label = string(s.defaultPeriod)
		}
		period, err := model.ParsePeriod(label)
		if err != nil {
			return req, err
		}
		req.Range = period.Range(time.Now())
	}

	req.OwnerID = q.Get("owner_id")

	if v := q.Get("exclude_overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, eris.Errorf("api: exclude_overdue must be a boolean, got %q", v)
		}
		req.ExcludeOverdue = b
	}

	return req, nil
}

func parseCustomRange(startStr, endStr string) (model.DateRange, error) {
	start, err := model.ParseDate(startStr)
	if err != nil {
		return model.DateRange{}, err
	}
	end, err := model.ParseDate(endStr)
	if err != nil {
		return model.DateRange{}, err
	}
	return model.CustomRange(start, end)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.svc.Forecast(r.Context(), req)
	if err != nil {
		zap.L().Error("api: forecast failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "forecast computation failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReps(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.svc.RepPerformance(r.Context(), req)
	if err != nil {
		zap.L().Error("api: rep performance failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rep performance computation failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// scenarioRequest is the POST /scenario body. Dates are YYYY-MM-DD strings
// so callers never deal with timestamp precision on what is a date-only
// adjustment.
type scenarioRequest struct {
	Period         string              `json:"period"`
	Start          string              `json:"start"`
	End            string              `json:"end"`
	OwnerID        string              `json:"owner_id"`
	ExcludeOverdue *bool               `json:"exclude_overdue"`
	Adjustments    []adjustmentRequest `json:"adjustments"`
}

type adjustmentRequest struct {
	OpportunityID string   `json:"opportunity_id"`
	NewStage      *string  `json:"new_stage"`
	NewValue      *float64 `json:"new_value"`
	NewCloseDate  *string  `json:"new_close_date"`
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	var body scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := forecast.Request{ExcludeOverdue: s.excludeOverdue}
	switch {
	case body.Start != "" && body.End != "":
		rng, err := parseCustomRange(body.Start, body.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Range = rng
	case body.Start != "" || body.End != "":
		writeError(w, http.StatusBadRequest, "start and end must be supplied together")
		return
	default:
		label := body.Period
		if label == "" {
			label = string(s.defaultPeriod)
		}
		period, err := model.ParsePeriod(label)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Range = period.Range(time.Now())
	}
	req.OwnerID = body.OwnerID
	if body.ExcludeOverdue != nil {
		req.ExcludeOverdue = *body.ExcludeOverdue
	}

	adjustments, err := convertAdjustments(body.Adjustments)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.svc.Simulate(r.Context(), req, adjustments)
	if err != nil {
		zap.L().Error("api: scenario failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scenario simulation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func convertAdjustments(in []adjustmentRequest) ([]forecast.Adjustment, error) {
	out := make([]forecast.Adjustment, 0, len(in))
	for i, a := range in {
		if a.OpportunityID == "" {
			return nil, eris.Errorf("api: adjustments[%d] missing opportunity_id", i)
		}
		adj := forecast.Adjustment{
			OpportunityID: a.OpportunityID,
			NewValue:      a.NewValue,
		}
		if a.NewStage != nil {
			stage := model.Stage(*a.NewStage)
			adj.NewStage = &stage
		}
		if a.NewCloseDate != nil {
			t, err := model.ParseDate(*a.NewCloseDate)
			if err != nil {
				return nil, eris.Errorf("api: adjustments[%d] new_close_date must be YYYY-MM-DD, got %q", i, *a.NewCloseDate)
			}
			adj.NewCloseDate = &t
		}
		out = append(out, adj)
	}
	return out, nil
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	vs, err := s.settings.Get(r.Context())
	if err != nil {
		zap.L().Error("api: read settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "settings read failed")
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleSettingsDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Defaults())
}

// handlePutSettings replaces the scoring configuration. Decode failures,
// unknown fields included, come back 400; documents that decode but fail
// validation come back 422. Either way nothing is persisted.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	candidate, err := scoring.ParseSettings(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vs, err := s.settings.Put(r.Context(), candidate)
	if err != nil {
		var verr *scoring.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		zap.L().Error("api: write settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "settings write failed")
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// snapshotResponse inlines the stored summary payload as raw JSON instead
// of letting the []byte field base64-encode.
type snapshotResponse struct {
	ID      string          `json:"id"`
	Period  string          `json:"period"`
	TakenAt time.Time       `json:"taken_at"`
	Summary json.RawMessage `json:"summary"`
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	snaps, err := s.store.ListSnapshots(r.Context(), limit)
	if err != nil {
		zap.L().Error("api: list snapshots failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot listing failed")
		return
	}

	out := make([]snapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotResponse{
			ID:      snap.ID,
			Period:  snap.Period,
			TakenAt: snap.TakenAt,
			Summary: json.RawMessage(snap.Payload),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}
