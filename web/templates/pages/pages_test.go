package pages

import (
	"bytes"
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpi_tracker/internal/indicators"
	"kpi_tracker/internal/models"
	"kpi_tracker/internal/navigation"
	"kpi_tracker/internal/services"
	"kpi_tracker/web/templates/shared"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestDashboardPage(t *testing.T) {
	v, prev, target := 110.0, 100.0, 100.0
	progress := 110.0
	summary := &services.Summary{
		BrandID:        1,
		Period:         "2026-02",
		PreviousPeriod: "2026-01",
		Rows: []services.SummaryRow{{
			KPIID: 1, Code: "revenue", Name: "Revenue", Unit: "EUR",
			Value: &v, Previous: &prev, Target: &target, Progress: &progress,
			Trend:  indicators.Trend{Direction: indicators.TrendUp, Magnitude: 10},
			Status: indicators.StatusComplete,
		}},
		Counts: services.StatusCounts{Complete: 1},
	}

	html := render(t, DashboardPage(DashboardProps{
		Layout: shared.LayoutProps{
			Title:       "Acme",
			Breadcrumbs: navigation.Resolve("/dashboard", ""),
			UserEmail:   "ana@example.com",
		},
		Brands:  []models.Brand{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}},
		BrandID: 1,
		Summary: summary,
	}))

	assert.Contains(t, html, "<h1>Acme</h1>")
	assert.Contains(t, html, `<option value="1" selected>Acme</option>`)
	assert.Contains(t, html, `<option value="2">Globex</option>`)
	assert.Contains(t, html, `<input type="month" name="period" value="2026-02">`)
	assert.Contains(t, html, "February 2026 compared with January 2026")
	assert.Contains(t, html, `<tr data-kpi="revenue"><td>Revenue</td><td>110 EUR</td><td>100 EUR</td>`)
	assert.Contains(t, html, "On target: 1")
	assert.Contains(t, html, `class="status status-complete"`)
	assert.Contains(t, html, "ana@example.com")
	assert.NotContains(t, html, `class="role"`)
	assert.NotContains(t, html, "shimmer")
}

func TestDashboardPageWithoutBrand(t *testing.T) {
	html := render(t, DashboardPage(DashboardProps{Layout: shared.LayoutProps{Title: "Dashboard"}, Loading: true}))
	assert.Contains(t, html, "No brand available.")
	assert.Contains(t, html, `class="shimmer"`)
	assert.NotContains(t, html, `name="period"`)
}

func TestDashboardPageWithoutAssignments(t *testing.T) {
	html := render(t, DashboardPage(DashboardProps{
		Layout:  shared.LayoutProps{Title: "Acme"},
		Brands:  []models.Brand{{ID: 1, Name: "Acme"}},
		BrandID: 1,
		Summary: &services.Summary{BrandID: 1, Period: "2026-02", PreviousPeriod: "2026-01"},
	}))
	assert.Contains(t, html, "No KPIs are assigned to this brand.")
	assert.NotContains(t, html, "<table")
}

func TestLoginAndErrorPages(t *testing.T) {
	html := render(t, LoginPage(LoginProps{FirebaseProjectID: "kpi-prod", Error: "Session expired"}))
	assert.Contains(t, html, `data-project-id="kpi-prod"`)
	assert.Contains(t, html, `<p class="error">Session expired</p>`)
	assert.NotContains(t, html, `class="topbar"`)

	html = render(t, ErrorPage(ErrorPageProps{
		Layout:       shared.LayoutProps{Title: "Page Not Found", Breadcrumbs: []navigation.Item{navigation.Root, {Label: "Error"}}},
		ErrorMessage: "The page you're looking for doesn't exist.",
		BackLink:     "/dashboard",
		BackText:     "Back to dashboard",
	}))
	assert.Contains(t, html, "<h1>Page Not Found</h1>")
	assert.Contains(t, html, "doesn&#39;t exist")
	assert.Contains(t, html, `<a href="/dashboard">Back to dashboard</a>`)
}

func TestFormatValue(t *testing.T) {
	v := 12.5
	assert.Equal(t, "–", formatValue(nil, "EUR"))
	assert.Equal(t, "12.5", formatValue(&v, ""))
	assert.Equal(t, "12.5%", formatValue(&v, "%"))
	assert.Equal(t, "12.5 orders", formatValue(&v, "orders"))
}
