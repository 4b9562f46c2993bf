package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"kpi_tracker/internal/models"
)

// SessionCookieName is the cookie holding the Firebase session
const SessionCookieName = "session"

// Context keys set by RequireAuth
const (
	ContextUserUID   = "userUID"
	ContextUserEmail = "userEmail"
	ContextUser      = "user"
)

// TokenVerifier verifies Firebase credentials. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
}

// UserResolver maps a verified identity to the local user
type UserResolver interface {
	FindByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
}

// RequireAuth accepts either a bearer ID token or the session cookie.
// API requests get 401 JSON responses, page requests are redirected to /login.
func RequireAuth(verifier TokenVerifier, users UserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return deny(c, "/login?error=auth_not_configured", "authentication not configured")
			}

			ctx := c.Request().Context()
			var (
				token *auth.Token
				err   error
			)
			if bearer, ok := bearerToken(c.Request()); ok {
				token, err = verifier.VerifyIDToken(ctx, bearer)
			} else {
				cookie, cerr := c.Cookie(SessionCookieName)
				if cerr != nil || cookie.Value == "" {
					return deny(c, "/login", "missing credentials")
				}
				token, err = verifier.VerifySessionCookie(ctx, cookie.Value)
				if err != nil {
					c.SetCookie(ClearSessionCookie())
				}
			}
			if err != nil {
				return deny(c, "/login", "invalid credentials")
			}

			user, err := users.FindByFirebaseUID(ctx, token.UID)
			if err != nil {
				return deny(c, "/login?error=unknown_user", "unknown user")
			}

			c.Set(ContextUserUID, token.UID)
			c.Set(ContextUserEmail, user.Email)
			c.Set(ContextUser, user)

			return next(c)
		}
	}
}

// RequireAdmin rejects users without the admin role. It must run after RequireAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil || !user.IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
			}
			return next(c)
		}
	}
}

// CurrentUser returns the user set by RequireAuth, or nil
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(ContextUser).(*models.User)
	return user
}

// ClearSessionCookie returns a cookie that removes the session
func ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	}
}

// ErrMissingBearer is returned for an Authorization header that is not a bearer token
var ErrMissingBearer = errors.New("missing bearer token")

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, error) {
	token, ok := bearerToken(r)
	if !ok {
		return "", ErrMissingBearer
	}
	return token, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func deny(c echo.Context, redirect, message string) error {
	if IsAPIRequest(c.Request().URL.Path) {
		return echo.NewHTTPError(http.StatusUnauthorized, message)
	}
	return c.Redirect(http.StatusTemporaryRedirect, redirect)
}

// IsAPIRequest reports whether path belongs to the JSON API
func IsAPIRequest(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/api" || strings.HasPrefix(path, "/auth/")
}
