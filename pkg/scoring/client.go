package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/resilience"
)

const (
	defaultBaseURL = "https://api.mediarc.example/v1"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Client calls the external disease-risk scoring API.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Subject identifies the person being scored.
type Subject struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// Checkup carries the canonical metrics of the latest checkup.
type Checkup struct {
	Date              string             `json:"date,omitempty"`
	Metrics           map[string]float64 `json:"metrics"`
	CheckupCount      int                `json:"checkup_count"`
	PrescriptionCount int                `json:"prescription_count"`
}

// Questionnaire is the lifestyle survey sent alongside the checkup.
type Questionnaire struct {
	Smoking             string   `json:"smoking"`
	Drinking            string   `json:"drinking"`
	ExerciseDaysPerWeek int      `json:"exercise_days_per_week"`
	FamilyHistory       []string `json:"family_history"`
	Medications         []string `json:"medications"`
}

// Request is the body of POST /report.
type Request struct {
	Subject       Subject       `json:"subject"`
	Checkup       Checkup       `json:"checkup"`
	Questionnaire Questionnaire `json:"questionnaire"`
}

// Response is the scoring result.
type Response struct {
	ReportURL   string          `json:"report_url"`
	RiskScore   float64         `json:"risk_score"`
	Rank        int             `json:"rank"`
	DiseaseData json.RawMessage `json:"disease_data,omitempty"`
	CancerData  json.RawMessage `json:"cancer_data,omitempty"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds a single scoring call.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a scoring API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate posts one scoring request. Every failure is returned as a
// *model.ExternalAPIError; no partial response is ever returned.
func (c *httpClient) Generate(ctx context.Context, r Request) (*Response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, &model.ExternalAPIError{Err: eris.Wrap(err, "scoring: marshal request")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/report", bytes.NewReader(body))
	if err != nil {
		return nil, &model.ExternalAPIError{Err: eris.Wrap(err, "scoring: create request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.ExternalAPIError{
			Retryable: !errors.Is(err, context.Canceled),
			Err:       eris.Wrap(err, "scoring: send request"),
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.ExternalAPIError{
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Err:        eris.Wrap(err, "scoring: read response"),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.ExternalAPIError{
			StatusCode: resp.StatusCode,
			Retryable:  resilience.IsTransientHTTPStatus(resp.StatusCode),
			Err:        eris.Errorf("scoring: unexpected status %d: %s", resp.StatusCode, truncate(respBody)),
		}
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &model.ExternalAPIError{
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Err:        eris.Wrap(err, "scoring: unmarshal response"),
		}
	}
	if result.ReportURL == "" {
		return nil, &model.ExternalAPIError{
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Err:        eris.New("scoring: response missing report_url"),
		}
	}

	return &result, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
