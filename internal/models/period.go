package models

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period is a reporting month in YYYY-MM form
type Period string

// ParsePeriod validates s and returns it as a Period
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid period %q, expected YYYY-MM", s)
	}
	return Period(t.Format(periodLayout)), nil
}

// PeriodOf returns the period containing t
func PeriodOf(t time.Time) Period {
	return Period(t.Format(periodLayout))
}

// Start returns the first instant of the period in UTC
func (p Period) Start() time.Time {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Previous returns the month before p
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Next returns the month after p
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// Label renders the period for display, e.g. "January 2026"
func (p Period) Label() string {
	return p.Start().Format("January 2006")
}

func (p Period) String() string {
	return string(p)
}
