package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kpi_tracker/internal/models"
)

type fakeVerifier struct {
	idTokens map[string]string
	sessions map[string]string
}

func (v *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if uid, ok := v.idTokens[idToken]; ok {
		return &auth.Token{UID: uid}, nil
	}
	return nil, errors.New("bad token")
}

func (v *fakeVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*auth.Token, error) {
	if uid, ok := v.sessions[cookie]; ok {
		return &auth.Token{UID: uid}, nil
	}
	return nil, errors.New("bad cookie")
}

type fakeUsers map[string]*models.User

func (u fakeUsers) FindByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	if user, ok := u[uid]; ok {
		return user, nil
	}
	return nil, errors.New("not found")
}

func newTestServer() *echo.Echo {
	verifier := &fakeVerifier{
		idTokens: map[string]string{"good-token": "uid-ana", "ghost-token": "uid-ghost"},
		sessions: map[string]string{"good-cookie": "uid-bob"},
	}
	users := fakeUsers{
		"uid-ana": {ID: 1, Email: "ana@example.com", Role: models.UserRoleAdmin},
		"uid-bob": {ID: 2, Email: "bob@example.com", Role: models.UserRoleUser},
	}

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(zap.NewNop())
	protected := e.Group("", RequireAuth(verifier, users))
	whoami := func(c echo.Context) error {
		return c.String(http.StatusOK, CurrentUser(c).Email)
	}
	protected.GET("/dashboard", whoami)
	protected.GET("/api/me", whoami)
	protected.GET("/api/admin/ping", whoami, RequireAdmin())
	return e
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthBearer(t *testing.T) {
	e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good-token")
	rec := do(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@example.com", rec.Body.String())
}

func TestRequireAuthSessionCookie(t *testing.T) {
	e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good-cookie"})
	rec := do(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob@example.com", rec.Body.String())
}

func TestRequireAuthRejects(t *testing.T) {
	e := newTestServer()

	t.Run("page without credentials redirects", func(t *testing.T) {
		rec := do(e, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	})

	t.Run("api without credentials is 401 json", func(t *testing.T) {
		rec := do(e, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "missing credentials", body.Error)
	})

	t.Run("invalid cookie is cleared", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stale"})
		rec := do(e, req)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "session=;")
	})

	t.Run("valid token without local user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer ghost-token")
		assert.Equal(t, http.StatusUnauthorized, do(e, req).Code)
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, do(e, req).Code)
	})
}

func TestRequireAuthNotConfigured(t *testing.T) {
	e := echo.New()
	e.GET("/dashboard", func(c echo.Context) error { return nil }, RequireAuth(nil, fakeUsers{}))
	rec := do(e, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, "/login?error=auth_not_configured", rec.Header().Get(echo.HeaderLocation))
}

func TestRequireAdmin(t *testing.T) {
	e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good-token")
	assert.Equal(t, http.StatusOK, do(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good-cookie"})
	rec := do(e, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Admin access required")
}

func TestErrorHandlerRendersHTMLPage(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(zap.NewNop())

	rec := do(e, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), "Page Not Found")
	assert.Contains(t, rec.Body.String(), `<li aria-current="page">Error</li>`)
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(zap.NewNop())
	e.GET("/api/boom", func(c echo.Context) error { return errors.New("pq: connection refused") })

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Contains(t, rec.Body.String(), "Something went wrong")
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := BearerToken(req)
	assert.ErrorIs(t, err, ErrMissingBearer)

	req.Header.Set(echo.HeaderAuthorization, "Bearer abc")
	token, err := BearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestIsAPIRequest(t *testing.T) {
	assert.True(t, IsAPIRequest("/api/brands"))
	assert.True(t, IsAPIRequest("/auth/login"))
	assert.False(t, IsAPIRequest("/apiary"))
	assert.False(t, IsAPIRequest("/dashboard"))
}
