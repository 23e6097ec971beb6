package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/service"
)

// httpError maps service errors onto status codes.
func httpError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusBadRequest, verr.Fields).SetInternal(err)
	}

	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenBlacklisted),
		errors.Is(err, service.ErrInactiveUser),
		errors.Is(err, service.ErrResetLinkInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrTokenExpired):
		return echo.NewHTTPError(http.StatusBadRequest, "Activation Expired")
	case errors.Is(err, service.ErrTokenMalformed):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid token")
	case errors.Is(err, service.ErrSearchDisabled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// ErrorHandler renders string messages as {"detail": msg} and field errors as they are.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := httpError(err)

	var body any
	switch m := he.Message.(type) {
	case string:
		body = echo.Map{"detail": m}
	case error:
		body = echo.Map{"detail": m.Error()}
	default:
		body = m
	}

	if he.Code >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("internal_error", "status", he.Code, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, body)
	}
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", err)
	}
}
