// Package mocks provides test doubles for the scoring API client.
package mocks

import (
	"context"

	scoring "github.com/partnerhealth/report-core/pkg/scoring"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req
func (_m *MockClient) Generate(ctx context.Context, req scoring.Request) (*scoring.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Generate")
	}

	var r0 *scoring.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, scoring.Request) (*scoring.Response, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, scoring.Request) *scoring.Response); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*scoring.Response)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, scoring.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
