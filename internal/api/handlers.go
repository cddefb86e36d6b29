package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/report"
	"github.com/partnerhealth/report-core/internal/status"
)

// statusResponse is a resolution plus the advisory progress of any running
// generation.
type statusResponse struct {
	*status.Result
	Generation *report.Progress `json:"generation,omitempty"`
}

type generateResponse struct {
	Started bool `json:"started"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(ctx); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := status.Query{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		PartnerID:  strings.TrimSpace(r.URL.Query().Get("partner_id")),
		HospitalID: strings.TrimSpace(r.URL.Query().Get("hospital_id")),
	}
	res, err := s.deps.Status.Status(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statusResponse{Result: res}
	if s.deps.Progress != nil && q.HospitalID != "" && !res.HasReport {
		p, err := s.deps.Progress.Get(r.Context(), q.UserID, q.HospitalID)
		if err != nil {
			zap.L().Debug("api: progress lookup failed", zap.String("user_id", q.UserID), zap.Error(err))
		}
		resp.Generation = p
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Reason: "malformed JSON body"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.HospitalID = strings.TrimSpace(req.HospitalID)
	req.PartnerID = strings.TrimSpace(req.PartnerID)
	req.Questionnaire.Normalize()
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	req.Trigger = report.TriggerAPI

	started, err := s.deps.Launcher.Launch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{Started: started})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	hospitalID := strings.TrimSpace(r.URL.Query().Get("hospital_id"))
	if userID == "" || hospitalID == "" {
		writeError(w, &model.ValidationError{Reason: "user_id and hospital_id are required"})
		return
	}
	if s.deps.Progress == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no generation in progress"})
		return
	}
	p, err := s.deps.Progress.Get(r.Context(), userID, hospitalID)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no generation in progress"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

// writeError maps domain errors to HTTP codes. Anything unexpected is a 500
// with a generic message; the detail only goes to the log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case model.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case model.IsValidation(err):
		var ve *model.ValidationError
		errors.As(err, &ve)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe.Namespace())] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Fields: fields})
}

// fieldName drops the root type from "Request.questionnaire.smoking".
func fieldName(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
