// Package mocks provides test doubles for the autograp client.
package mocks

import (
	"context"

	autograp "github.com/crashify360/totalloss/pkg/autograp"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// MarketValue provides a mock function with given fields: ctx, req
func (_m *MockClient) MarketValue(ctx context.Context, req autograp.MarketValueRequest) (*autograp.Valuation, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for MarketValue")
	}

	var r0 *autograp.Valuation
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, autograp.MarketValueRequest) (*autograp.Valuation, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, autograp.MarketValueRequest) *autograp.Valuation); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*autograp.Valuation)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, autograp.MarketValueRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// VehicleDetails provides a mock function with given fields: ctx, vin
func (_m *MockClient) VehicleDetails(ctx context.Context, vin string) (*autograp.Vehicle, error) {
	ret := _m.Called(ctx, vin)

	if len(ret) == 0 {
		panic("no return value specified for VehicleDetails")
	}

	var r0 *autograp.Vehicle
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*autograp.Vehicle, error)); ok {
		return rf(ctx, vin)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *autograp.Vehicle); ok {
		r0 = rf(ctx, vin)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*autograp.Vehicle)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, vin)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Health provides a mock function with given fields: ctx
func (_m *MockClient) Health(ctx context.Context) bool {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Health")
	}

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context) bool); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Get(0).(bool)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
