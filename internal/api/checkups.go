package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/partnerhealth/report-core/internal/checkup"
	"github.com/partnerhealth/report-core/internal/model"
)

// CheckupWriter persists aggregated checkup datasets.
type CheckupWriter interface {
	UpsertCheckup(ctx context.Context, d *model.CheckupDataset) error
}

type checkupRequest struct {
	UserID            string        `json:"user_id" validate:"required,max=128"`
	Source            string        `json:"source" validate:"required,oneof=tilko partner"`
	PrescriptionCount int           `json:"prescription_count" validate:"min=0"`
	Rows              []checkup.Row `json:"rows" validate:"required,min=1,max=50"`
}

type checkupResponse struct {
	UserID       string `json:"user_id"`
	CheckupCount int    `json:"checkup_count"`
	MetricCount  int    `json:"metric_count"`
	CheckupDate  string `json:"checkup_date,omitempty"`
}

// handleIngestCheckup maps provider rows onto canonical metrics and stores
// the aggregate. Rows replace whatever the user had before.
func (s *Server) handleIngestCheckup(w http.ResponseWriter, r *http.Request) {
	var req checkupRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Reason: "malformed JSON body"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}

	ds := checkup.Aggregate(req.UserID, req.Source, req.Rows, req.PrescriptionCount, time.Now().UTC())
	if err := s.deps.Checkups.UpsertCheckup(r.Context(), ds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkupResponse{
		UserID:       ds.UserID,
		CheckupCount: ds.CheckupCount,
		MetricCount:  ds.MetricCount(),
		CheckupDate:  ds.CheckupDate,
	})
}
