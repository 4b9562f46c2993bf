package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"kpi_tracker/internal/services"
)

// AdminHandler manages brands, KPI definitions and assignments
type AdminHandler struct {
	kpis KPIStore
}

func NewAdminHandler(kpis KPIStore) *AdminHandler {
	return &AdminHandler{kpis: kpis}
}

// ---- brands ----

func (h *AdminHandler) ListBrands(c echo.Context) error {
	brands, err := h.kpis.ListBrands(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, brands)
}

func (h *AdminHandler) StoreBrand(c echo.Context) error {
	var in services.BrandInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	brand, err := h.kpis.CreateBrand(c.Request().Context(), in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, brand)
}

func (h *AdminHandler) UpdateBrand(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.BrandInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	brand, err := h.kpis.UpdateBrand(c.Request().Context(), id, in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, brand)
}

func (h *AdminHandler) DeleteBrand(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.kpis.DeleteBrand(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type setAssignmentsRequest struct {
	KPIs []services.AssignmentInput `json:"kpis"`
}

// SetBrandKPIs replaces the KPIs assigned to a brand
func (h *AdminHandler) SetBrandKPIs(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req setAssignmentsRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	assignments, err := h.kpis.SetAssignments(c.Request().Context(), id, req.KPIs)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, assignments)
}

// ---- kpis ----

func (h *AdminHandler) ListKPIs(c echo.Context) error {
	kpis, err := h.kpis.ListKPIs(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, kpis)
}

func (h *AdminHandler) StoreKPI(c echo.Context) error {
	var in services.KPIInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	kpi, err := h.kpis.CreateKPI(c.Request().Context(), in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, kpi)
}

func (h *AdminHandler) UpdateKPI(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.KPIInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	kpi, err := h.kpis.UpdateKPI(c.Request().Context(), id, in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, kpi)
}

func (h *AdminHandler) DeleteKPI(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.kpis.DeleteKPI(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
