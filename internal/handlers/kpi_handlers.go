package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"kpi_tracker/internal/loading"
	authMiddleware "kpi_tracker/internal/middleware"
	"kpi_tracker/internal/models"
	"kpi_tracker/internal/services"
)

// KPIHandler serves brands and KPI values
type KPIHandler struct {
	kpis     KPIStore
	activity *loading.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewKPIHandler creates a new KPIHandler
func NewKPIHandler(kpis KPIStore, activity *loading.Registry, logger *zap.Logger) *KPIHandler {
	return &KPIHandler{kpis: kpis, activity: activity, logger: logger, now: time.Now}
}

// Me returns the signed-in user
func (h *KPIHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, authMiddleware.CurrentUser(c))
}

// ListBrands returns the brands visible to the signed-in user
func (h *KPIHandler) ListBrands(c echo.Context) error {
	brands, err := h.kpis.ListBrandsForUser(c.Request().Context(), authMiddleware.CurrentUser(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, brands)
}

type valuesResponse struct {
	BrandID     uint              `json:"brand_id"`
	Period      models.Period     `json:"period"`
	Assignments []models.BrandKPI `json:"assignments,omitempty"`
	Values      []models.KPIValue `json:"values"`
}

// GetValues returns the assignments of a brand and its values for ?period=
func (h *KPIHandler) GetValues(c echo.Context) error {
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

	assignments, err := h.kpis.Assignments(ctx, brandID)
	if err != nil {
		return serviceError(err)
	}
	values, err := h.kpis.Values(ctx, brandID, period)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, valuesResponse{
		BrandID:     brandID,
		Period:      period,
		Assignments: assignments,
		Values:      values,
	})
}

type saveValuesRequest struct {
	Values []services.ValueInput `json:"values"`
}

// SaveValues upserts a batch of values. The save is tracked in the activity
// registry under save:<brand>:<period> while it runs.
func (h *KPIHandler) SaveValues(c echo.Context) error {
	brandID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	period, err := periodParam(c, h.now)
	if err != nil {
		return err
	}

	var req saveValuesRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	user := authMiddleware.CurrentUser(c)
	if _, err := h.kpis.RequireBrand(ctx, user, brandID); err != nil {
		return serviceError(err)
	}

	values, err := loading.WithLoading(h.activity, saveKey(brandID, period), func() ([]models.KPIValue, error) {
		return h.kpis.UpsertValues(ctx, user, brandID, period, req.Values)
	})
	if err != nil {
		h.logger.Warn("failed to save values",
			zap.Uint("brand_id", brandID),
			zap.String("period", period.String()),
			zap.Error(err))
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, valuesResponse{
		BrandID: brandID,
		Period:  period,
		Values:  values,
	})
}
