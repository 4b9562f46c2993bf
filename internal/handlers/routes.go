package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	authMiddleware "kpi_tracker/internal/middleware"
)

// Router groups the handlers mounted by Register
type Router struct {
	Auth      *AuthHandler
	Dashboard *DashboardHandler
	KPI       *KPIHandler
	Users     *UserHandler
	Admin     *AdminHandler

	Verifier authMiddleware.TokenVerifier
	Resolver authMiddleware.UserResolver
}

// Register mounts every route on e
func (r *Router) Register(e *echo.Echo) {
	// Public routes
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/login", r.Auth.LoginPage)
	e.POST("/auth/login", r.Auth.HandleLogin)
	e.POST("/auth/logout", r.Auth.HandleLogout)

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusTemporaryRedirect, "/dashboard")
	})

	// Protected routes
	protected := e.Group("")
	protected.Use(authMiddleware.RequireAuth(r.Verifier, r.Resolver))
	protected.GET("/dashboard", r.Dashboard.Dashboard)

	api := protected.Group("/api")
	api.GET("/me", r.KPI.Me)
	api.GET("/brands", r.KPI.ListBrands)
	api.GET("/brands/:id/summary", r.Dashboard.Summary)
	api.GET("/brands/:id/values", r.KPI.GetValues)
	api.PUT("/brands/:id/values", r.KPI.SaveValues)
	api.GET("/activity", r.Dashboard.Activity)
	api.GET("/breadcrumbs", r.Dashboard.Breadcrumbs)

	// Admin routes
	admin := api.Group("/admin", authMiddleware.RequireAdmin())
	admin.GET("/users", r.Users.ListUsers)
	admin.POST("/users", r.Users.StoreUser)
	admin.GET("/users/:id", r.Users.GetUser)
	admin.PUT("/users/:id", r.Users.UpdateUser)
	admin.PUT("/users/:id/brands", r.Users.SetUserBrands)
	admin.DELETE("/users/:id", r.Users.DeleteUser)

	admin.GET("/brands", r.Admin.ListBrands)
	admin.POST("/brands", r.Admin.StoreBrand)
	admin.PUT("/brands/:id", r.Admin.UpdateBrand)
	admin.DELETE("/brands/:id", r.Admin.DeleteBrand)
	admin.PUT("/brands/:id/kpis", r.Admin.SetBrandKPIs)

	admin.GET("/kpis", r.Admin.ListKPIs)
	admin.POST("/kpis", r.Admin.StoreKPI)
	admin.PUT("/kpis/:id", r.Admin.UpdateKPI)
	admin.DELETE("/kpis/:id", r.Admin.DeleteKPI)
}
