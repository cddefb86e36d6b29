// Package mocks provides test doubles for the record store.
package mocks

import (
	"context"
	"time"

	model "github.com/partnerhealth/report-core/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// AdvancePipeline provides a mock function with given fields: ctx, paymentID, step, reportURL
func (_m *MockStore) AdvancePipeline(ctx context.Context, paymentID string, step model.PipelineStep, reportURL string) error {
	ret := _m.Called(ctx, paymentID, step, reportURL)

	if len(ret) == 0 {
		panic("no return value specified for AdvancePipeline")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, model.PipelineStep, string) error); ok {
		r0 = rf(ctx, paymentID, step, reportURL)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// CreateTrackingRecord provides a mock function with given fields: ctx, userID, partnerID
func (_m *MockStore) CreateTrackingRecord(ctx context.Context, userID string, partnerID string) (*model.PaymentRecord, error) {
	ret := _m.Called(ctx, userID, partnerID)

	if len(ret) == 0 {
		panic("no return value specified for CreateTrackingRecord")
	}

	var r0 *model.PaymentRecord
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*model.PaymentRecord, error)); ok {
		return rf(ctx, userID, partnerID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *model.PaymentRecord); ok {
		r0 = rf(ctx, userID, partnerID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.PaymentRecord)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, userID, partnerID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GenerationStats provides a mock function with given fields: ctx, since
func (_m *MockStore) GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error) {
	ret := _m.Called(ctx, since)

	if len(ret) == 0 {
		panic("no return value specified for GenerationStats")
	}

	var r0 *model.GenerationStats
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, time.Time) (*model.GenerationStats, error)); ok {
		return rf(ctx, since)
	}
	if rf, ok := ret.Get(0).(func(context.Context, time.Time) *model.GenerationStats); ok {
		r0 = rf(ctx, since)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.GenerationStats)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, time.Time) error); ok {
		r1 = rf(ctx, since)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetCheckupSummary provides a mock function with given fields: ctx, userID
func (_m *MockStore) GetCheckupSummary(ctx context.Context, userID string) (*model.CheckupDataset, error) {
	ret := _m.Called(ctx, userID)

	if len(ret) == 0 {
		panic("no return value specified for GetCheckupSummary")
	}

	var r0 *model.CheckupDataset
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.CheckupDataset, error)); ok {
		return rf(ctx, userID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *model.CheckupDataset); ok {
		r0 = rf(ctx, userID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.CheckupDataset)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, userID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetConsent provides a mock function with given fields: ctx, userID, partnerID
func (_m *MockStore) GetConsent(ctx context.Context, userID string, partnerID string) (*model.ConsentRecord, error) {
	ret := _m.Called(ctx, userID, partnerID)

	if len(ret) == 0 {
		panic("no return value specified for GetConsent")
	}

	var r0 *model.ConsentRecord
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*model.ConsentRecord, error)); ok {
		return rf(ctx, userID, partnerID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *model.ConsentRecord); ok {
		r0 = rf(ctx, userID, partnerID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.ConsentRecord)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, userID, partnerID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetPayment provides a mock function with given fields: ctx, userID, partnerID
func (_m *MockStore) GetPayment(ctx context.Context, userID string, partnerID string) (*model.PaymentRecord, error) {
	ret := _m.Called(ctx, userID, partnerID)

	if len(ret) == 0 {
		panic("no return value specified for GetPayment")
	}

	var r0 *model.PaymentRecord
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*model.PaymentRecord, error)); ok {
		return rf(ctx, userID, partnerID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *model.PaymentRecord); ok {
		r0 = rf(ctx, userID, partnerID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.PaymentRecord)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, userID, partnerID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetReport provides a mock function with given fields: ctx, userID, hospitalID
func (_m *MockStore) GetReport(ctx context.Context, userID string, hospitalID string) (*model.GeneratedReport, error) {
	ret := _m.Called(ctx, userID, hospitalID)

	if len(ret) == 0 {
		panic("no return value specified for GetReport")
	}

	var r0 *model.GeneratedReport
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*model.GeneratedReport, error)); ok {
		return rf(ctx, userID, hospitalID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *model.GeneratedReport); ok {
		r0 = rf(ctx, userID, hospitalID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.GeneratedReport)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, userID, hospitalID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ListStuckPayments provides a mock function with given fields: ctx, updatedBefore, limit
func (_m *MockStore) ListStuckPayments(ctx context.Context, updatedBefore time.Time, limit int) ([]model.PaymentRecord, error) {
	ret := _m.Called(ctx, updatedBefore, limit)

	if len(ret) == 0 {
		panic("no return value specified for ListStuckPayments")
	}

	var r0 []model.PaymentRecord
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, time.Time, int) ([]model.PaymentRecord, error)); ok {
		return rf(ctx, updatedBefore, limit)
	}
	if rf, ok := ret.Get(0).(func(context.Context, time.Time, int) []model.PaymentRecord); ok {
		r0 = rf(ctx, updatedBefore, limit)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.PaymentRecord)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, time.Time, int) error); ok {
		r1 = rf(ctx, updatedBefore, limit)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Ping provides a mock function with given fields: ctx
func (_m *MockStore) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Ping")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// RecordGeneration provides a mock function with given fields: ctx, a
func (_m *MockStore) RecordGeneration(ctx context.Context, a *model.GenerationAttempt) error {
	ret := _m.Called(ctx, a)

	if len(ret) == 0 {
		panic("no return value specified for RecordGeneration")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *model.GenerationAttempt) error); ok {
		r0 = rf(ctx, a)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// UpsertCheckup provides a mock function with given fields: ctx, d
func (_m *MockStore) UpsertCheckup(ctx context.Context, d *model.CheckupDataset) error {
	ret := _m.Called(ctx, d)

	if len(ret) == 0 {
		panic("no return value specified for UpsertCheckup")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *model.CheckupDataset) error); ok {
		r0 = rf(ctx, d)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// UpsertConsent provides a mock function with given fields: ctx, c
func (_m *MockStore) UpsertConsent(ctx context.Context, c *model.ConsentRecord) error {
	ret := _m.Called(ctx, c)

	if len(ret) == 0 {
		panic("no return value specified for UpsertConsent")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *model.ConsentRecord) error); ok {
		r0 = rf(ctx, c)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// UpsertPayment provides a mock function with given fields: ctx, p
func (_m *MockStore) UpsertPayment(ctx context.Context, p *model.PaymentRecord) error {
	ret := _m.Called(ctx, p)

	if len(ret) == 0 {
		panic("no return value specified for UpsertPayment")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *model.PaymentRecord) error); ok {
		r0 = rf(ctx, p)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// UpsertReport provides a mock function with given fields: ctx, r
func (_m *MockStore) UpsertReport(ctx context.Context, r *model.GeneratedReport) error {
	ret := _m.Called(ctx, r)

	if len(ret) == 0 {
		panic("no return value specified for UpsertReport")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *model.GeneratedReport) error); ok {
		r0 = rf(ctx, r)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockStore creates a new instance of MockStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	mock := &MockStore{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
