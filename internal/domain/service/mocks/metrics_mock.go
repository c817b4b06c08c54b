package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockMetrics is a mock implementation of service.Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordScoring(scoreType string, band string, fallback bool, duration time.Duration) {
	m.Called(scoreType, band, fallback, duration)
}

func (m *MockMetrics) RecordQuote(band string, cooldownApplied bool) {
	m.Called(band, cooldownApplied)
}

func (m *MockMetrics) RecordAdjustmentApplied(band string) {
	m.Called(band)
}

func (m *MockMetrics) RecordBulkFailure(kind string) {
	m.Called(kind)
}

func (m *MockMetrics) RecordPricingTableUpdate(result string) {
	m.Called(result)
}

func (m *MockMetrics) RecordCacheAccess(cacheType string, hit bool) {
	m.Called(cacheType, hit)
}
