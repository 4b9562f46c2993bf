package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kpi_tracker/internal/config"
	"kpi_tracker/internal/loading"
	authMiddleware "kpi_tracker/internal/middleware"
	"kpi_tracker/internal/models"
	"kpi_tracker/internal/navigation"
	"kpi_tracker/internal/services"
)

var (
	admin  = &models.User{ID: 1, Email: "admin@example.com", Role: models.UserRoleAdmin}
	editor = &models.User{ID: 2, Email: "editor@example.com", Role: models.UserRoleUser}
)

type fakeAuth struct{}

func (fakeAuth) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	switch idToken {
	case "admin-token":
		return &auth.Token{UID: "uid-admin"}, nil
	case "editor-token":
		return &auth.Token{UID: "uid-editor"}, nil
	}
	return nil, errors.New("invalid token")
}

func (fakeAuth) VerifySessionCookie(ctx context.Context, cookie string) (*auth.Token, error) {
	return nil, errors.New("no sessions")
}

func (fakeAuth) SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	return "cookie-for-" + idToken, nil
}

type fakeResolver struct{}

func (fakeResolver) FindByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	switch uid {
	case "uid-admin":
		return admin, nil
	case "uid-editor":
		return editor, nil
	}
	return nil, services.ErrNotFound
}

// fakeKPIs holds two brands. The editor is assigned brand 1 only.
type fakeKPIs struct {
	mu       sync.Mutex
	brands   []models.Brand
	saved    []services.ValueInput
	saveHook func()
	saveErr  error
}

func newFakeKPIs() *fakeKPIs {
	return &fakeKPIs{brands: []models.Brand{
		{ID: 1, Code: "ACME", Name: "Acme", IsActive: true},
		{ID: 2, Code: "GLOBEX", Name: "Globex", IsActive: true},
	}}
}

func (f *fakeKPIs) CanAccessBrand(ctx context.Context, user *models.User, brandID uint) (bool, error) {
	return user.IsAdmin() || brandID == 1, nil
}

func (f *fakeKPIs) RequireBrand(ctx context.Context, user *models.User, brandID uint) (*models.Brand, error) {
	for i := range f.brands {
		if f.brands[i].ID != brandID {
			continue
		}
		if ok, _ := f.CanAccessBrand(ctx, user, brandID); !ok {
			return nil, services.ErrForbidden
		}
		return &f.brands[i], nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeKPIs) ListBrandsForUser(ctx context.Context, user *models.User) ([]models.Brand, error) {
	if user.IsAdmin() {
		return f.brands, nil
	}
	return f.brands[:1], nil
}

func (f *fakeKPIs) ListBrands(ctx context.Context) ([]models.Brand, error) { return f.brands, nil }

func (f *fakeKPIs) CreateBrand(ctx context.Context, in services.BrandInput) (*models.Brand, error) {
	if in.Code == "ACME" {
		return nil, services.ErrConflict
	}
	return &models.Brand{ID: 3, Code: in.Code, Name: in.Name, IsActive: true}, nil
}

func (f *fakeKPIs) UpdateBrand(ctx context.Context, id uint, in services.BrandInput) (*models.Brand, error) {
	return &models.Brand{ID: id, Code: in.Code, Name: in.Name}, nil
}

func (f *fakeKPIs) DeleteBrand(ctx context.Context, id uint) error {
	if id > 2 {
		return services.ErrNotFound
	}
	return nil
}

func (f *fakeKPIs) ListKPIs(ctx context.Context) ([]models.KPI, error) {
	return []models.KPI{{ID: 10, Code: "SALES", Name: "Sales"}}, nil
}

func (f *fakeKPIs) CreateKPI(ctx context.Context, in services.KPIInput) (*models.KPI, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", services.ErrInvalidInput)
	}
	return &models.KPI{ID: 11, Code: in.Code, Name: in.Name}, nil
}

func (f *fakeKPIs) UpdateKPI(ctx context.Context, id uint, in services.KPIInput) (*models.KPI, error) {
	return &models.KPI{ID: id, Code: in.Code, Name: in.Name}, nil
}

func (f *fakeKPIs) DeleteKPI(ctx context.Context, id uint) error { return nil }

func (f *fakeKPIs) Assignments(ctx context.Context, brandID uint) ([]models.BrandKPI, error) {
	return []models.BrandKPI{{ID: 1, BrandID: brandID, KPIID: 10}}, nil
}

func (f *fakeKPIs) SetAssignments(ctx context.Context, brandID uint, in []services.AssignmentInput) ([]models.BrandKPI, error) {
	out := make([]models.BrandKPI, 0, len(in))
	for _, a := range in {
		out = append(out, models.BrandKPI{BrandID: brandID, KPIID: a.KPIID, Target: a.Target})
	}
	return out, nil
}

func (f *fakeKPIs) Values(ctx context.Context, brandID uint, period models.Period) ([]models.KPIValue, error) {
	return []models.KPIValue{{BrandID: brandID, KPIID: 10, Period: period, Value: 42}}, nil
}

func (f *fakeKPIs) UpsertValues(ctx context.Context, user *models.User, brandID uint, period models.Period, in []services.ValueInput) ([]models.KPIValue, error) {
	if f.saveHook != nil {
		f.saveHook()
	}
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.mu.Lock()
	f.saved = append(f.saved, in...)
	f.mu.Unlock()

	out := make([]models.KPIValue, 0, len(in))
	for _, v := range in {
		out = append(out, models.KPIValue{BrandID: brandID, KPIID: v.KPIID, Period: period, Value: v.Value})
	}
	return out, nil
}

type fakeSummary struct {
	periods []models.Period
}

func (f *fakeSummary) Summary(ctx context.Context, brandID uint, period models.Period) (*services.Summary, error) {
	f.periods = append(f.periods, period)
	target := 100.0
	return services.BuildSummary(brandID, period,
		[]models.BrandKPI{{BrandID: brandID, KPIID: 10, Target: &target, KPI: models.KPI{ID: 10, Code: "SALES", Name: "Sales"}}},
		[]models.KPIValue{{KPIID: 10, Value: 85}},
		[]models.KPIValue{{KPIID: 10, Value: 80}},
	), nil
}

type fakeUsers struct {
	deleted []uint
}

func (f *fakeUsers) List(ctx context.Context) ([]models.User, error) {
	return []models.User{*admin, *editor}, nil
}

func (f *fakeUsers) Get(ctx context.Context, id uint) (*models.User, error) {
	if id == editor.ID {
		return editor, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeUsers) Create(ctx context.Context, in services.CreateUserInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &models.User{ID: 7, Email: in.Email, Name: in.Name, Role: in.Role}, nil
}

func (f *fakeUsers) Update(ctx context.Context, id uint, in services.UpdateUserInput) (*models.User, error) {
	return &models.User{ID: id, Name: in.Name, Role: in.Role}, nil
}

func (f *fakeUsers) SetBrands(ctx context.Context, id uint, brandIDs []uint) (*models.User, error) {
	user := &models.User{ID: id}
	for _, b := range brandIDs {
		user.Brands = append(user.Brands, models.Brand{ID: b})
	}
	return user, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type testApp struct {
	e        *echo.Echo
	kpis     *fakeKPIs
	summary  *fakeSummary
	users    *fakeUsers
	activity *loading.Registry
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := zap.NewNop()
	cfg := &config.Config{SessionTTL: time.Hour, FirebaseProjectID: "kpi-test"}
	fixed := func() time.Time { return time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC) }

	app := &testApp{
		e:        echo.New(),
		kpis:     newFakeKPIs(),
		summary:  &fakeSummary{},
		users:    &fakeUsers{},
		activity: loading.NewRegistry(),
	}
	app.e.HTTPErrorHandler = authMiddleware.NewErrorHandler(logger)

	dashboard := NewDashboardHandler(app.kpis, app.summary, app.activity, logger)
	dashboard.now = fixed
	kpi := NewKPIHandler(app.kpis, app.activity, logger)
	kpi.now = fixed

	router := &Router{
		Auth:      NewAuthHandler(fakeAuth{}, cfg, logger),
		Dashboard: dashboard,
		KPI:       kpi,
		Users:     NewUserHandler(app.users, logger),
		Admin:     NewAdminHandler(app.kpis),
		Verifier:  fakeAuth{},
		Resolver:  fakeResolver{},
	}
	router.Register(app.e)
	return app
}

func (a *testApp) request(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	rec := app.request(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLoginSetsSessionCookie(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodPost, "/auth/login", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := rec.Result().Cookies()
	require.Len(t, cookie, 1)
	assert.Equal(t, authMiddleware.SessionCookieName, cookie[0].Name)
	assert.Equal(t, "cookie-for-editor-token", cookie[0].Value)
	assert.True(t, cookie[0].HttpOnly)
	assert.Equal(t, 3600, cookie[0].MaxAge)

	rec = app.request(http.MethodPost, "/auth/login", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.request(http.MethodPost, "/auth/login", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogout(t *testing.T) {
	app := newTestApp(t)
	rec := app.request(http.MethodPost, "/auth/logout", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestLoginPage(t *testing.T) {
	app := newTestApp(t)
	rec := app.request(http.MethodGet, "/login?error=unknown_user", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-project-id="kpi-test"`)
	assert.Contains(t, rec.Body.String(), "has not been set up yet")
}

func TestDashboardPage(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodGet, "/dashboard", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<li aria-current="page">Dashboard</li>`)
	assert.Contains(t, body, "<h1>Acme</h1>")
	assert.Contains(t, body, `data-kpi="SALES"`)
	assert.Contains(t, body, `status status-near`)
	assert.Equal(t, []models.Period{"2024-03"}, app.summary.periods)
	assert.NotContains(t, body, "Globex", "editor only sees assigned brands")
}

func TestDashboardPageRejectsUnassignedBrand(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodGet, "/dashboard?brand=2", "editor-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.request(http.MethodGet, "/dashboard?brand=2&period=2023-12", "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "December 2023")
}

func TestSummaryAPI(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodGet, "/api/brands/1/summary?period=2024-02", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[services.Summary](t, rec)
	assert.Equal(t, models.Period("2024-02"), summary.Period)
	assert.Equal(t, models.Period("2024-01"), summary.PreviousPeriod)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, 1, summary.Counts.Near)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"malformed period", "/api/brands/1/summary?period=2024-13", http.StatusBadRequest},
		{"bad id", "/api/brands/abc/summary", http.StatusBadRequest},
		{"unassigned brand", "/api/brands/2/summary", http.StatusForbidden},
		{"unknown brand", "/api/brands/99/summary", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.request(http.MethodGet, tt.path, "editor-token", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want, decode[authMiddleware.ErrorResponse](t, rec).Code)
		})
	}
}

func TestGetValuesDefaultsToCurrentMonth(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodGet, "/api/brands/1/values", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[valuesResponse](t, rec)
	assert.Equal(t, models.Period("2024-03"), resp.Period)
	assert.Len(t, resp.Assignments, 1)
	assert.Len(t, resp.Values, 1)
}

func TestSaveValuesTracksActivity(t *testing.T) {
	app := newTestApp(t)

	var during []string
	app.kpis.saveHook = func() { during = app.activity.Active() }

	rec := app.request(http.MethodPut, "/api/brands/1/values?period=2024-02", "editor-token",
		`{"values":[{"kpi_id":10,"value":120,"note":"record month"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"save:1:2024-02"}, during)
	assert.False(t, app.activity.Any(), "flag is cleared after the save")
	require.Len(t, app.kpis.saved, 1)
	assert.Equal(t, 120.0, app.kpis.saved[0].Value)
}

func TestSaveValuesFailureClearsActivity(t *testing.T) {
	app := newTestApp(t)
	app.kpis.saveErr = fmt.Errorf("%w: kpi 99 is not assigned to this brand", services.ErrInvalidInput)

	rec := app.request(http.MethodPut, "/api/brands/1/values", "editor-token", `{"values":[{"kpi_id":99,"value":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not assigned")
	assert.False(t, app.activity.IsLoading("save:1:2024-03"))
}

func TestSaveValuesRejectsInvalidJSON(t *testing.T) {
	app := newTestApp(t)
	rec := app.request(http.MethodPut, "/api/brands/1/values", "editor-token", `{"values":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, app.kpis.saved)
}

func TestActivity(t *testing.T) {
	type activity struct {
		Loading bool     `json:"loading"`
		Keys    []string `json:"keys"`
	}
	app := newTestApp(t)
	app.activity.Start("task:3")
	app.activity.Start("save:1:2024-03")
	app.activity.Start("save:2:2024-03")

	rec := app.request(http.MethodGet, "/api/activity", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[activity](t, rec)
	assert.True(t, body.Loading)
	assert.Equal(t, []string{"save:1:2024-03"}, body.Keys, "only saves of assigned brands")

	rec = app.request(http.MethodGet, "/api/activity", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[activity](t, rec)
	assert.True(t, body.Loading)
	assert.Equal(t, []string{"save:1:2024-03", "save:2:2024-03", "task:3"}, body.Keys)

	app.activity.Stop("save:1:2024-03")
	rec = app.request(http.MethodGet, "/api/activity", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[activity](t, rec)
	assert.False(t, body.Loading)
	assert.Empty(t, body.Keys)
}

func TestSaveKeyBrand(t *testing.T) {
	id, ok := saveKeyBrand(saveKey(12, "2024-03"))
	assert.True(t, ok)
	assert.Equal(t, uint(12), id)

	for _, key := range []string{"task:12", "save:", "save:12", "save:x:2024-03"} {
		_, ok := saveKeyBrand(key)
		assert.False(t, ok, key)
	}
}

func TestBreadcrumbsAPI(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodGet, "/api/breadcrumbs?path=/brands/acme/entry&title=March", "editor-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]navigation.Item](t, rec)
	assert.Equal(t, []navigation.Item{
		{Label: "Home", Href: "/"},
		{Label: "Brands", Href: "/brands"},
		{Label: "Acme", Href: "/brands/acme"},
		{Label: "March", Href: "/brands/acme/entry"},
	}, items)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodGet, "/api/admin/users", "editor-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.request(http.MethodGet, "/api/admin/users", "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 2)
}

func TestAdminUsers(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodPost, "/api/admin/users", "admin-token", `{"email":" New@Example.com ","name":"New"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.User](t, rec)
	assert.Equal(t, "new@example.com", created.Email)
	assert.Equal(t, models.UserRoleUser, created.Role)

	rec = app.request(http.MethodPost, "/api/admin/users", "admin-token", `{"email":"nope","name":"X"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.request(http.MethodPut, "/api/admin/users/2/brands", "admin-token", `{"brand_ids":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[models.User](t, rec).Brands, 2)

	rec = app.request(http.MethodGet, "/api/admin/users/9", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.request(http.MethodDelete, "/api/admin/users/1", "admin-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "admins cannot delete themselves")

	rec = app.request(http.MethodDelete, "/api/admin/users/2", "admin-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uint{2}, app.users.deleted)
}

func TestAdminBrandsAndKPIs(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(http.MethodPost, "/api/admin/brands", "admin-token", `{"code":"ACME","name":"Acme"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.request(http.MethodPost, "/api/admin/brands", "admin-token", `{"code":"INITECH","name":"Initech"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = app.request(http.MethodDelete, "/api/admin/brands/5", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.request(http.MethodPut, "/api/admin/brands/1/kpis", "admin-token", `{"kpis":[{"kpi_id":10,"target":500}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assignments := decode[[]models.BrandKPI](t, rec)
	require.Len(t, assignments, 1)
	require.NotNil(t, assignments[0].Target)
	assert.Equal(t, 500.0, *assignments[0].Target)

	rec = app.request(http.MethodPost, "/api/admin/kpis", "admin-token", `{"code":"NPS"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.request(http.MethodGet, "/api/admin/kpis", "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("brand: %w", services.ErrForbidden), http.StatusForbidden},
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.ErrorAs(t, serviceError(tt.err), &he)
		assert.Equal(t, tt.want, he.Code)
	}

	plain := errors.New("boom")
	assert.Same(t, plain, serviceError(plain))
	assert.NoError(t, serviceError(nil))
}
