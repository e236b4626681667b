// Package mocks provides test doubles for the dataforseo client.
package mocks

import (
	"context"

	dataforseo "github.com/sells-group/keyword-discovery/pkg/dataforseo"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// KeywordSuggestions provides a mock function with given fields: ctx, req
func (_m *MockClient) KeywordSuggestions(ctx context.Context, req dataforseo.SuggestionsRequest) ([]dataforseo.KeywordItem, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for KeywordSuggestions")
	}

	var r0 []dataforseo.KeywordItem
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, dataforseo.SuggestionsRequest) ([]dataforseo.KeywordItem, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, dataforseo.SuggestionsRequest) []dataforseo.KeywordItem); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]dataforseo.KeywordItem)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, dataforseo.SuggestionsRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// RankedKeywords provides a mock function with given fields: ctx, req
func (_m *MockClient) RankedKeywords(ctx context.Context, req dataforseo.RankedKeywordsRequest) ([]dataforseo.RankedItem, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for RankedKeywords")
	}

	var r0 []dataforseo.RankedItem
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, dataforseo.RankedKeywordsRequest) ([]dataforseo.RankedItem, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, dataforseo.RankedKeywordsRequest) []dataforseo.RankedItem); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]dataforseo.RankedItem)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, dataforseo.RankedKeywordsRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// KeywordOverview provides a mock function with given fields: ctx, keywords
func (_m *MockClient) KeywordOverview(ctx context.Context, keywords []string) ([]dataforseo.KeywordItem, error) {
	ret := _m.Called(ctx, keywords)

	if len(ret) == 0 {
		panic("no return value specified for KeywordOverview")
	}

	var r0 []dataforseo.KeywordItem
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []string) ([]dataforseo.KeywordItem, error)); ok {
		return rf(ctx, keywords)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []string) []dataforseo.KeywordItem); ok {
		r0 = rf(ctx, keywords)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]dataforseo.KeywordItem)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []string) error); ok {
		r1 = rf(ctx, keywords)
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
