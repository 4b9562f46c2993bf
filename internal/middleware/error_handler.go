package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"kpi_tracker/internal/navigation"
	"kpi_tracker/web/templates/pages"
	"kpi_tracker/web/templates/shared"
)

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// NewErrorHandler renders API errors as JSON and page errors as HTML
func NewErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		title, message := "Internal Server Error", ""

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		switch code {
		case http.StatusNotFound:
			title = "Page Not Found"
			if message == "" || message == http.StatusText(code) {
				message = "The page you're looking for doesn't exist."
			}
		case http.StatusForbidden:
			title = "Access Denied"
			if message == "" {
				message = "You don't have permission to access this resource."
			}
		case http.StatusUnauthorized:
			title = "Unauthorized"
			if message == "" {
				message = "Please log in to continue."
			}
		case http.StatusBadRequest:
			title = "Bad Request"
			if message == "" {
				message = "The request could not be processed."
			}
		default:
			if code >= 500 || message == "" {
				message = "Something went wrong. Please try again later."
			}
			if code < 500 {
				title = http.StatusText(code)
			}
		}

		if code >= 500 {
			logger.Error("request error", zap.String("path", c.Request().URL.Path), zap.Error(err))
		} else {
			logger.Debug("request rejected", zap.Int("code", code), zap.Error(err))
		}

		path := c.Request().URL.Path
		var renderErr error
		switch {
		case c.Request().Method == http.MethodHead:
			renderErr = c.NoContent(code)
		case IsAPIRequest(path):
			renderErr = c.JSON(code, ErrorResponse{Error: message, Code: code})
		default:
			renderErr = renderErrorPage(c, code, title, message)
		}
		if renderErr != nil {
			logger.Error("failed to render error", zap.Error(renderErr))
		}
	}
}

func renderErrorPage(c echo.Context, code int, title, message string) error {
	props := pages.ErrorPageProps{
		Layout: shared.LayoutProps{
			Title:       title,
			Breadcrumbs: []navigation.Item{navigation.Root, {Label: "Error"}},
		},
		ErrorMessage: message,
		BackLink:     "/dashboard",
		BackText:     "Back to dashboard",
	}
	if user := CurrentUser(c); user != nil {
		props.Layout.UserEmail = user.Email
		props.Layout.IsAdmin = user.IsAdmin()
	}
	if strings.HasPrefix(c.Request().URL.Path, "/login") {
		props.BackLink, props.BackText = "/login", "Back to login"
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return pages.ErrorPage(props).Render(c.Request().Context(), c.Response())
}
