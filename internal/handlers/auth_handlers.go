package handlers

import (
	"context"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"kpi_tracker/internal/config"
	authMiddleware "kpi_tracker/internal/middleware"
	"kpi_tracker/web/templates/pages"
)

// SessionIssuer verifies ID tokens and mints session cookies. *auth.Client satisfies it.
type SessionIssuer interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	issuer SessionIssuer
	cfg    *config.Config
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(issuer SessionIssuer, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, cfg: cfg, logger: logger}
}

var loginErrors = map[string]string{
	"auth_not_configured": "Sign-in is not configured on this server.",
	"unknown_user":        "Your account has not been set up yet. Ask an administrator for access.",
}

// LoginPage renders the login page
func (h *AuthHandler) LoginPage(c echo.Context) error {
	props := pages.LoginProps{
		FirebaseAPIKey:     h.cfg.FirebaseAPIKey,
		FirebaseAuthDomain: h.cfg.FirebaseAuthDomain,
		FirebaseProjectID:  h.cfg.FirebaseProjectID,
		Error:              loginErrors[c.QueryParam("error")],
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return pages.LoginPage(props).Render(c.Request().Context(), c.Response())
}

// HandleLogin verifies the Firebase ID token and creates a session cookie
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	if h.issuer == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Firebase not initialized")
	}

	idToken, err := authMiddleware.BearerToken(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing or invalid authorization header")
	}

	ctx := c.Request().Context()
	token, err := h.issuer.VerifyIDToken(ctx, idToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	cookieValue, err := h.issuer.SessionCookie(ctx, idToken, h.cfg.SessionTTL)
	if err != nil {
		h.logger.Error("failed to create session cookie", zap.String("uid", token.UID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create session")
	}

	c.SetCookie(&http.Cookie{
		Name:     authMiddleware.SessionCookieName,
		Value:    cookieValue,
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]string{
		"status": "success",
	})
}

// HandleLogout clears the session cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(authMiddleware.ClearSessionCookie())
	if c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON {
		return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}
