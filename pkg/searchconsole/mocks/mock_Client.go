// Package mocks provides test doubles for the searchconsole client.
package mocks

import (
	"context"

	searchconsole "github.com/sells-group/keyword-discovery/pkg/searchconsole"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Query provides a mock function with given fields: ctx, req
func (_m *MockClient) Query(ctx context.Context, req searchconsole.QueryRequest) ([]searchconsole.Row, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Query")
	}

	var r0 []searchconsole.Row
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, searchconsole.QueryRequest) ([]searchconsole.Row, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, searchconsole.QueryRequest) []searchconsole.Row); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]searchconsole.Row)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, searchconsole.QueryRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
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
