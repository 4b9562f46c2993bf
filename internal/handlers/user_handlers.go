package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	authMiddleware "kpi_tracker/internal/middleware"
	"kpi_tracker/internal/services"
)

// UserHandler manages users. Every route is admin only.
type UserHandler struct {
	users  UserStore
	logger *zap.Logger
}

func NewUserHandler(users UserStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// ListUsers returns every user with their brands
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.users.List(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, users)
}

// GetUser returns one user
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.users.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// StoreUser provisions a Firebase account and the local user
func (h *UserHandler) StoreUser(c echo.Context) error {
	var in services.CreateUserInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	user, err := h.users.Create(c.Request().Context(), in)
	if err != nil {
		return serviceError(err)
	}

	h.logger.Info("user created",
		zap.Uint("user_id", user.ID),
		zap.String("by", authMiddleware.CurrentUser(c).Email))
	return c.JSON(http.StatusCreated, user)
}

// UpdateUser changes the name or role of a user
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.UpdateUserInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	user, err := h.users.Update(c.Request().Context(), id, in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, user)
}

type setBrandsRequest struct {
	BrandIDs []uint `json:"brand_ids"`
}

// SetUserBrands replaces the brands assigned to a user
func (h *UserHandler) SetUserBrands(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req setBrandsRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	user, err := h.users.SetBrands(c.Request().Context(), id, req.BrandIDs)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteUser removes a user and its Firebase account
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if current := authMiddleware.CurrentUser(c); current != nil && current.ID == id {
		return echo.NewHTTPError(http.StatusBadRequest, "You cannot delete your own account")
	}

	if err := h.users.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
