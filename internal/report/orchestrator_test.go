package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/resilience"
	"github.com/partnerhealth/report-core/internal/store/mocks"
	"github.com/partnerhealth/report-core/pkg/scoring"
	scoringmocks "github.com/partnerhealth/report-core/pkg/scoring/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sufficientDataset(userID string) *model.CheckupDataset {
	return &model.CheckupDataset{
		UserID: userID,
		Source: "tilko",
		Metrics: map[model.Metric]float64{
			model.MetricHeight:         172,
			model.MetricWeight:         70,
			model.MetricBMI:            23.7,
			model.MetricSystolicBP:     121,
			model.MetricDiastolicBP:    79,
			model.MetricFastingGlucose: 92,
		},
		CheckupCount:      3,
		PrescriptionCount: 2,
		CheckupDate:       "2024-11-02",
	}
}

type recordingAnnouncer struct {
	mu   sync.Mutex
	refs []model.ReportRef
}

func (a *recordingAnnouncer) AnnounceReport(ref model.ReportRef) <-chan struct{} {
	a.mu.Lock()
	a.refs = append(a.refs, ref)
	a.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done
}

func (a *recordingAnnouncer) announced() []model.ReportRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ReportRef(nil), a.refs...)
}

func newTestOrchestrator(st *mocks.MockStore, sc *scoringmocks.MockClient, opts ...OrchestratorOption) *Orchestrator {
	o := NewOrchestrator(st, sc, opts...)
	o.now = func() time.Time { return fixedNow }
	return o
}

func outcomeIs(want model.GenerationOutcome) any {
	return mock.MatchedBy(func(a *model.GenerationAttempt) bool { return a.Outcome == want })
}

func TestOrchestrator_Generate_Success(t *testing.T) {
	st := mocks.NewMockStore(t)
	sc := scoringmocks.NewMockClient(t)
	ann := &recordingAnnouncer{}

	st.On("GetCheckupSummary", mock.Anything, "u1").Return(sufficientDataset("u1"), nil)
	st.On("GetConsent", mock.Anything, "u1", "clinic-a").Return(&model.ConsentRecord{
		UserID:   "u1",
		Identity: model.Identity{Name: "Kim", BirthDate: "19800101", Gender: "F"},
	}, nil)
	sc.On("Generate", mock.Anything, mock.MatchedBy(func(r scoring.Request) bool {
		return r.Subject.Name == "Kim" && len(r.Checkup.Metrics) == 6 && r.Questionnaire.Smoking == "never"
	})).Return(&scoring.Response{
		ReportURL:  "https://reports.example/u1.pdf",
		RiskScore:  41.5,
		Rank:       12,
		AnalyzedAt: fixedNow.Add(-time.Minute),
	}, nil)
	st.On("UpsertReport", mock.Anything, mock.MatchedBy(func(r *model.GeneratedReport) bool {
		return r.UserID == "u1" && r.HospitalID == "clinic-a" && r.ReportURL == "https://reports.example/u1.pdf"
	})).Return(nil)
	st.On("GetPayment", mock.Anything, "u1", "clinic-a").Return(&model.PaymentRecord{
		ID: "pay_1", UserID: "u1", PartnerID: "clinic-a",
		Status: model.PaymentStatusCompleted, PipelineStep: model.StepReportWaiting,
	}, nil)
	st.On("AdvancePipeline", mock.Anything, "pay_1", model.StepCompleted, "https://reports.example/u1.pdf").Return(nil).Once()
	st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomeSuccess)).Return(nil).Once()

	o := newTestOrchestrator(st, sc, WithAnnouncer(ann))
	ref, err := o.Generate(context.Background(), Request{UserID: "u1", HospitalID: "clinic-a", PartnerID: "clinic-a", Trigger: TriggerAPI})
	require.NoError(t, err)
	assert.Equal(t, "https://reports.example/u1.pdf", ref.ReportURL)
	assert.Equal(t, fixedNow.Add(-time.Minute), ref.AnalyzedAt)
	require.Len(t, ann.announced(), 1)
	assert.Equal(t, *ref, ann.announced()[0])
}

func TestOrchestrator_Generate_RequiresIDs(t *testing.T) {
	st := mocks.NewMockStore(t)
	sc := scoringmocks.NewMockClient(t)

	_, err := newTestOrchestrator(st, sc).Generate(context.Background(), Request{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	st.AssertNotCalled(t, "RecordGeneration", mock.Anything, mock.Anything)
}

func TestOrchestrator_Generate_NoData(t *testing.T) {
	tests := []struct {
		name string
		ds   *model.CheckupDataset
	}{
		{name: "missing", ds: nil},
		{name: "rows without metrics", ds: &model.CheckupDataset{UserID: "u1", CheckupCount: 2, Metrics: map[model.Metric]float64{model.MetricHeight: 170}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mocks.NewMockStore(t)
			sc := scoringmocks.NewMockClient(t)
			st.On("GetCheckupSummary", mock.Anything, "u1").Return(tt.ds, nil)
			st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomeNoData)).Return(nil).Once()

			_, err := newTestOrchestrator(st, sc).Generate(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
			require.Error(t, err)
			assert.True(t, model.IsNoData(err))
			assert.False(t, resilience.IsTransient(err))
			sc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}
}

func TestOrchestrator_Generate_ScoringErrorWritesNothing(t *testing.T) {
	st := mocks.NewMockStore(t)
	sc := scoringmocks.NewMockClient(t)
	st.On("GetCheckupSummary", mock.Anything, "u1").Return(sufficientDataset("u1"), nil)
	st.On("GetConsent", mock.Anything, "u1", "").Return(nil, nil)
	sc.On("Generate", mock.Anything, mock.Anything).
		Return(nil, &model.ExternalAPIError{StatusCode: 503, Retryable: true, Err: errors.New("unavailable")})
	st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomeScoringError)).Return(nil).Once()

	_, err := newTestOrchestrator(st, sc).Generate(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
	require.Error(t, err)

	var apiErr *model.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.True(t, resilience.IsTransient(err))
	st.AssertNotCalled(t, "UpsertReport", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "AdvancePipeline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Generate_PlainScoringErrorIsWrapped(t *testing.T) {
	st := mocks.NewMockStore(t)
	sc := scoringmocks.NewMockClient(t)
	st.On("GetCheckupSummary", mock.Anything, "u1").Return(sufficientDataset("u1"), nil)
	st.On("GetConsent", mock.Anything, "u1", "").Return(nil, nil)
	sc.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset by peer"))
	st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomeScoringError)).Return(nil)

	_, err := newTestOrchestrator(st, sc).Generate(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
	var apiErr *model.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable)
}

func TestOrchestrator_Generate_PersistError(t *testing.T) {
	st := mocks.NewMockStore(t)
	sc := scoringmocks.NewMockClient(t)
	st.On("GetCheckupSummary", mock.Anything, "u1").Return(sufficientDataset("u1"), nil)
	st.On("GetConsent", mock.Anything, "u1", "").Return(nil, errors.New("consent table locked"))
	sc.On("Generate", mock.Anything, mock.Anything).Return(&scoring.Response{ReportURL: "https://reports.example/u1.pdf"}, nil)
	st.On("UpsertReport", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomePersistError)).Return(nil)

	ann := &recordingAnnouncer{}
	_, err := newTestOrchestrator(st, sc, WithAnnouncer(ann)).Generate(context.Background(), Request{UserID: "u1", HospitalID: "h1"})

	var pe *model.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "upsert report", pe.Op)
	assert.Empty(t, ann.announced())
	st.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Generate_LedgerAdvance(t *testing.T) {
	const url = "https://reports.example/u1.pdf"
	tests := []struct {
		name    string
		payment *model.PaymentRecord
		advance bool
	}{
		{name: "no payment", payment: nil},
		{name: "tracking record", payment: &model.PaymentRecord{ID: "trk_1", Status: model.PaymentStatusCompleted, Ephemeral: true}},
		{name: "not settled", payment: &model.PaymentRecord{ID: "pay_1", Status: model.PaymentStatusReady}},
		{name: "already completed", payment: &model.PaymentRecord{ID: "pay_1", Status: model.PaymentStatusCompleted, PipelineStep: model.StepCompleted, ReportURL: url}},
		{name: "completed with old url", payment: &model.PaymentRecord{ID: "pay_1", Status: model.PaymentStatusCompleted, PipelineStep: model.StepCompleted, ReportURL: "old"}, advance: true},
		{name: "waiting", payment: &model.PaymentRecord{ID: "pay_1", Status: model.PaymentStatusCompleted, PipelineStep: model.StepReportWaiting}, advance: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mocks.NewMockStore(t)
			sc := scoringmocks.NewMockClient(t)
			st.On("GetCheckupSummary", mock.Anything, "u1").Return(sufficientDataset("u1"), nil)
			st.On("GetConsent", mock.Anything, "u1", "").Return(nil, nil)
			sc.On("Generate", mock.Anything, mock.Anything).Return(&scoring.Response{ReportURL: url}, nil)
			st.On("UpsertReport", mock.Anything, mock.Anything).Return(nil)
			st.On("GetPayment", mock.Anything, "u1", "").Return(tt.payment, nil)
			if tt.advance {
				st.On("AdvancePipeline", mock.Anything, "pay_1", model.StepCompleted, url).Return(nil).Once()
			}
			st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomeSuccess)).Return(nil)

			_, err := newTestOrchestrator(st, sc).Generate(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
			require.NoError(t, err)
			if !tt.advance {
				st.AssertNotCalled(t, "AdvancePipeline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOrchestrator_Generate_LedgerFailureIsNotFatal(t *testing.T) {
	st := mocks.NewMockStore(t)
	sc := scoringmocks.NewMockClient(t)
	st.On("GetCheckupSummary", mock.Anything, "u1").Return(sufficientDataset("u1"), nil)
	st.On("GetConsent", mock.Anything, "u1", "").Return(nil, nil)
	sc.On("Generate", mock.Anything, mock.Anything).Return(&scoring.Response{ReportURL: "https://reports.example/u1.pdf"}, nil)
	st.On("UpsertReport", mock.Anything, mock.Anything).Return(nil)
	st.On("GetPayment", mock.Anything, "u1", "").Return(nil, errors.New("timeout"))
	st.On("RecordGeneration", mock.Anything, outcomeIs(model.OutcomeSuccess)).Return(errors.New("log table missing"))

	ref, err := newTestOrchestrator(st, sc).Generate(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, ref.AnalyzedAt, "zero analyzed_at falls back to now")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, model.OutcomeSuccess, Outcome(nil))
	assert.Equal(t, model.OutcomeNoData, Outcome(&model.NoDataError{UserID: "u1"}))
	assert.Equal(t, model.OutcomeScoringError, Outcome(&model.ExternalAPIError{Err: errors.New("x")}))
	assert.Equal(t, model.OutcomePersistError, Outcome(&model.PersistenceError{Op: "upsert report", Err: errors.New("x")}))
	assert.Equal(t, model.OutcomePersistError, Outcome(errors.New("load checkup")))
}
