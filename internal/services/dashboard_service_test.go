package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpi_tracker/internal/indicators"
	"kpi_tracker/internal/models"
)

func f(v float64) *float64 { return &v }

type fakeReader struct {
	mu          sync.Mutex
	assignments []models.BrandKPI
	values      map[models.Period][]models.KPIValue
	err         error
	calls       int
}

func (r *fakeReader) Assignments(ctx context.Context, brandID uint) ([]models.BrandKPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.assignments, r.err
}

func (r *fakeReader) Values(ctx context.Context, brandID uint, period models.Period) ([]models.KPIValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.values[period], nil
}

func sampleAssignments() []models.BrandKPI {
	return []models.BrandKPI{
		{KPIID: 1, KPI: models.KPI{ID: 1, Code: "revenue", Name: "Revenue", Unit: "EUR", DefaultTarget: f(1000)}},
		{KPIID: 2, KPI: models.KPI{ID: 2, Code: "orders", Name: "Orders"}, Target: f(100)},
		{KPIID: 3, KPI: models.KPI{ID: 3, Code: "nps", Name: "NPS"}},
	}
}

func TestBuildSummary(t *testing.T) {
	current := []models.KPIValue{
		{KPIID: 1, Value: 1100, Note: "strong month"},
		{KPIID: 2, Value: 85},
	}
	previous := []models.KPIValue{
		{KPIID: 1, Value: 1000},
		{KPIID: 3, Value: 40},
	}

	s := BuildSummary(7, "2026-02", sampleAssignments(), current, previous)
	assert.Equal(t, uint(7), s.BrandID)
	assert.Equal(t, models.Period("2026-01"), s.PreviousPeriod)
	require.Len(t, s.Rows, 3)

	revenue := s.Rows[0]
	assert.Equal(t, indicators.TrendUp, revenue.Trend.Direction)
	assert.InDelta(t, 10, revenue.Trend.Magnitude, 1e-9)
	assert.Equal(t, indicators.StatusComplete, revenue.Status)
	assert.Equal(t, "strong month", revenue.Note)
	require.NotNil(t, revenue.Progress)
	assert.InDelta(t, 110, *revenue.Progress, 1e-9)

	orders := s.Rows[1]
	assert.Equal(t, indicators.TrendUnknown, orders.Trend.Direction)
	assert.Equal(t, indicators.StatusNear, orders.Status)
	assert.Nil(t, orders.Previous)

	nps := s.Rows[2]
	assert.Nil(t, nps.Value)
	require.NotNil(t, nps.Previous)
	assert.Equal(t, indicators.TrendUnknown, nps.Trend.Direction)
	assert.Equal(t, indicators.StatusUnset, nps.Status)

	assert.Equal(t, StatusCounts{Complete: 1, Near: 1, Unset: 1}, s.Counts)
}

func TestDashboardServiceSummaryWithoutCache(t *testing.T) {
	reader := &fakeReader{
		assignments: sampleAssignments(),
		values: map[models.Period][]models.KPIValue{
			"2026-02": {{KPIID: 2, Value: 50}},
		},
	}
	svc := NewDashboardService(reader, nil, time.Minute)

	s, err := svc.Summary(context.Background(), 1, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, indicators.StatusBelow, s.Rows[1].Status)
	assert.Equal(t, 3, reader.calls)

	_, err = svc.Summary(context.Background(), 1, "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 6, reader.calls, "nil cache always rebuilds")
}

func TestDashboardServiceSummaryError(t *testing.T) {
	boom := errors.New("db down")
	svc := NewDashboardService(&fakeReader{err: boom}, nil, time.Minute)

	_, err := svc.Summary(context.Background(), 1, "2026-02")
	assert.ErrorIs(t, err, boom)
}

func TestGetOrSetNilCache(t *testing.T) {
	var cache *RedisCache
	got, err := GetOrSet(cache, context.Background(), "k", time.Minute, func() (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.NoError(t, cache.Delete(context.Background(), "k"))
	assert.NoError(t, cache.DeletePrefix(context.Background(), "k"))
	assert.NoError(t, cache.Close())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "summary:4:2026-01", SummaryCacheKey(4, "2026-01"))
	assert.Equal(t, "summary:4:", BrandCachePrefix(4))
}

func TestValidateValueBatch(t *testing.T) {
	assignments := sampleAssignments()

	assert.NoError(t, validateValueBatch(assignments, []ValueInput{{KPIID: 1}, {KPIID: 3}}))

	err := validateValueBatch(assignments, []ValueInput{{KPIID: 9}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = validateValueBatch(assignments, []ValueInput{{KPIID: 1}, {KPIID: 1}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "acme", normalizeCode("  ACME "))
}
