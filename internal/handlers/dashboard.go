package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"kpi_tracker/internal/loading"
	authMiddleware "kpi_tracker/internal/middleware"
	"kpi_tracker/internal/models"
	"kpi_tracker/internal/navigation"
	"kpi_tracker/web/templates/pages"
	"kpi_tracker/web/templates/shared"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	kpis     KPIStore
	summary  SummaryProvider
	activity *loading.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(kpis KPIStore, summary SummaryProvider, activity *loading.Registry, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		kpis:     kpis,
		summary:  summary,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// Dashboard renders the dashboard page
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	user := authMiddleware.CurrentUser(c)
	ctx := c.Request().Context()

	period, err := periodParam(c, h.now)
	if err != nil {
		return err
	}

	brands, err := h.kpis.ListBrandsForUser(ctx, user)
	if err != nil {
		return serviceError(err)
	}

	props := pages.DashboardProps{
		Layout: shared.LayoutProps{
			Title:       "Dashboard",
			Breadcrumbs: navigation.Resolve(c.Request().URL.Path, ""),
			UserEmail:   user.Email,
			IsAdmin:     user.IsAdmin(),
		},
		Brands: brands,
	}

	if len(brands) > 0 {
		brandID := brands[0].ID
		if raw := c.QueryParam("brand"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "Invalid brand")
			}
			brandID = uint(id)
		}
		brand, err := h.kpis.RequireBrand(ctx, user, brandID)
		if err != nil {
			return serviceError(err)
		}

		summary, err := h.summary.Summary(ctx, brand.ID, period)
		if err != nil {
			return serviceError(err)
		}
		props.BrandID = brand.ID
		props.Summary = summary
		props.Loading = h.activity.IsLoading(saveKey(brand.ID, period))
		props.Layout.Title = brand.Name
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return pages.DashboardPage(props).Render(ctx, c.Response())
}

// Summary returns the dashboard of one brand as JSON
func (h *DashboardHandler) Summary(c echo.Context) error {
	brandID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	period, err := periodParam(c, h.now)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := h.kpis.RequireBrand(ctx, authMiddleware.CurrentUser(c), brandID); err != nil {
		return serviceError(err)
	}

	summary, err := h.summary.Summary(ctx, brandID, period)
	if err != nil {
		h.logger.Error("failed to build summary", zap.Uint("brand_id", brandID), zap.String("period", period.String()), zap.Error(err))
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// Breadcrumbs resolves ?path= and an optional ?title= into a trail
func (h *DashboardHandler) Breadcrumbs(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		path = "/"
	}
	return c.JSON(http.StatusOK, navigation.Resolve(path, c.QueryParam("title")))
}

// Activity reports the operations that are currently running. Admins see
// every key, other users only the saves of brands they can access.
func (h *DashboardHandler) Activity(c echo.Context) error {
	user := authMiddleware.CurrentUser(c)
	keys := h.activity.Active()
	if !user.IsAdmin() {
		visible := make([]string, 0, len(keys))
		for _, key := range keys {
			brandID, ok := saveKeyBrand(key)
			if !ok {
				continue
			}
			allowed, err := h.kpis.CanAccessBrand(c.Request().Context(), user, brandID)
			if err != nil {
				return serviceError(err)
			}
			if allowed {
				visible = append(visible, key)
			}
		}
		keys = visible
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"loading": len(keys) > 0,
		"keys":    keys,
	})
}

func saveKey(brandID uint, period models.Period) string {
	return "save:" + strconv.FormatUint(uint64(brandID), 10) + ":" + period.String()
}

// saveKeyBrand extracts the brand of a key built by saveKey
func saveKeyBrand(key string) (uint, bool) {
	rest, ok := strings.CutPrefix(key, "save:")
	if !ok {
		return 0, false
	}
	id, _, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}
