package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"kpi_tracker/internal/models"
	"kpi_tracker/internal/services"
)

// KPIStore is the part of services.KPIService used by the handlers
type KPIStore interface {
	CanAccessBrand(ctx context.Context, user *models.User, brandID uint) (bool, error)
	RequireBrand(ctx context.Context, user *models.User, brandID uint) (*models.Brand, error)
	ListBrandsForUser(ctx context.Context, user *models.User) ([]models.Brand, error)

	ListBrands(ctx context.Context) ([]models.Brand, error)
	CreateBrand(ctx context.Context, in services.BrandInput) (*models.Brand, error)
	UpdateBrand(ctx context.Context, id uint, in services.BrandInput) (*models.Brand, error)
	DeleteBrand(ctx context.Context, id uint) error

	ListKPIs(ctx context.Context) ([]models.KPI, error)
	CreateKPI(ctx context.Context, in services.KPIInput) (*models.KPI, error)
	UpdateKPI(ctx context.Context, id uint, in services.KPIInput) (*models.KPI, error)
	DeleteKPI(ctx context.Context, id uint) error

	Assignments(ctx context.Context, brandID uint) ([]models.BrandKPI, error)
	SetAssignments(ctx context.Context, brandID uint, in []services.AssignmentInput) ([]models.BrandKPI, error)

	Values(ctx context.Context, brandID uint, period models.Period) ([]models.KPIValue, error)
	UpsertValues(ctx context.Context, user *models.User, brandID uint, period models.Period, in []services.ValueInput) ([]models.KPIValue, error)
}

// SummaryProvider builds brand dashboards
type SummaryProvider interface {
	Summary(ctx context.Context, brandID uint, period models.Period) (*services.Summary, error)
}

// UserStore is the part of services.UserService used by the handlers
type UserStore interface {
	List(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id uint) (*models.User, error)
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
	Update(ctx context.Context, id uint, in services.UpdateUserInput) (*models.User, error)
	SetBrands(ctx context.Context, id uint, brandIDs []uint) (*models.User, error)
	Delete(ctx context.Context, id uint) error
}

// serviceError maps service sentinels onto HTTP errors
func serviceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "You don't have access to this brand")
	case errors.Is(err, services.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

// periodParam reads ?period=YYYY-MM, defaulting to the month of now
func periodParam(c echo.Context, now func() time.Time) (models.Period, error) {
	raw := c.QueryParam("period")
	if raw == "" {
		return models.PeriodOf(now()), nil
	}
	p, err := models.ParsePeriod(raw)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return p, nil
}

func bindJSON(c echo.Context, dest interface{}) error {
	if err := c.Bind(dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	return nil
}
