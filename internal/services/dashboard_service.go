package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"kpi_tracker/internal/indicators"
	"kpi_tracker/internal/models"
)

// KPIReader is the read side of KPIService used to build summaries
type KPIReader interface {
	Assignments(ctx context.Context, brandID uint) ([]models.BrandKPI, error)
	Values(ctx context.Context, brandID uint, period models.Period) ([]models.KPIValue, error)
}

// SummaryRow is one KPI line of a brand dashboard
type SummaryRow struct {
	KPIID    uint              `json:"kpi_id"`
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	Unit     string            `json:"unit"`
	Value    *float64          `json:"value"`
	Previous *float64          `json:"previous"`
	Target   *float64          `json:"target"`
	Progress *float64          `json:"progress"`
	Trend    indicators.Trend  `json:"trend"`
	Status   indicators.Status `json:"status"`
	Note     string            `json:"note,omitempty"`
}

// StatusCounts tallies rows per status
type StatusCounts struct {
	Complete int `json:"complete"`
	Near     int `json:"near"`
	Below    int `json:"below"`
	Unset    int `json:"unset"`
}

// Summary is the dashboard of one brand for one period
type Summary struct {
	BrandID        uint          `json:"brand_id"`
	Period         models.Period `json:"period"`
	PreviousPeriod models.Period `json:"previous_period"`
	Rows           []SummaryRow  `json:"rows"`
	Counts         StatusCounts  `json:"counts"`
}

// DashboardService derives dashboard summaries from assignments and values
type DashboardService struct {
	reader KPIReader
	cache  *RedisCache
	ttl    time.Duration
}

func NewDashboardService(reader KPIReader, cache *RedisCache, ttl time.Duration) *DashboardService {
	return &DashboardService{reader: reader, cache: cache, ttl: ttl}
}

// Summary returns the summary of brandID for period, served from cache when possible
func (s *DashboardService) Summary(ctx context.Context, brandID uint, period models.Period) (*Summary, error) {
	return GetOrSet(s.cache, ctx, SummaryCacheKey(brandID, period.String()), s.ttl, func() (*Summary, error) {
		return s.build(ctx, brandID, period)
	})
}

func (s *DashboardService) build(ctx context.Context, brandID uint, period models.Period) (*Summary, error) {
	var (
		assignments []models.BrandKPI
		current     []models.KPIValue
		previous    []models.KPIValue
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = s.reader.Assignments(gctx, brandID)
		return err
	})
	g.Go(func() error {
		var err error
		current, err = s.reader.Values(gctx, brandID, period)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.reader.Values(gctx, brandID, period.Previous())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BuildSummary(brandID, period, assignments, current, previous), nil
}

// BuildSummary combines assignments with the current and previous period values
func BuildSummary(brandID uint, period models.Period, assignments []models.BrandKPI, current, previous []models.KPIValue) *Summary {
	cur := indexValues(current)
	prev := indexValues(previous)

	summary := &Summary{
		BrandID:        brandID,
		Period:         period,
		PreviousPeriod: period.Previous(),
		Rows:           make([]SummaryRow, 0, len(assignments)),
	}

	for _, a := range assignments {
		row := SummaryRow{
			KPIID:  a.KPIID,
			Code:   a.KPI.Code,
			Name:   a.KPI.Name,
			Unit:   a.KPI.Unit,
			Target: a.EffectiveTarget(),
			Trend:  indicators.Trend{Direction: indicators.TrendUnknown},
		}
		if p, ok := prev[a.KPIID]; ok {
			v := p.Value
			row.Previous = &v
		}
		if c, ok := cur[a.KPIID]; ok {
			v := c.Value
			row.Value = &v
			row.Note = c.Note
			row.Progress = indicators.Progress(v, row.Target)
			row.Trend = indicators.ComputeTrend(v, row.Previous)
		}
		row.Status = indicators.ProgressStatus(row.Progress)

		switch row.Status {
		case indicators.StatusComplete:
			summary.Counts.Complete++
		case indicators.StatusNear:
			summary.Counts.Near++
		case indicators.StatusBelow:
			summary.Counts.Below++
		default:
			summary.Counts.Unset++
		}
		summary.Rows = append(summary.Rows, row)
	}
	return summary
}

func indexValues(values []models.KPIValue) map[uint]models.KPIValue {
	m := make(map[uint]models.KPIValue, len(values))
	for _, v := range values {
		m[v.KPIID] = v
	}
	return m
}
