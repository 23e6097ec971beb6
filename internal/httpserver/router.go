package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/car_rental/internal/access"
	loggingmw "github.com/Skotchmaster/car_rental/internal/middleware/logging"
	"github.com/Skotchmaster/car_rental/internal/tokens"
	"github.com/Skotchmaster/car_rental/internal/transport"
)

type Deps struct {
	Accounts *AccountHTTP
	Auth     *AuthHTTP
	Issuer   *tokens.Issuer
	Log      *slog.Logger
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

// New builds the echo instance with middleware and routes.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Validator = &CustomValidator{V: transport.NewValidator()}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(d.Log))
	e.Use(middleware.Recover())

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready").SetInternal(err)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	api := e.Group("", Authenticate(d.Issuer), LoadPrincipal(d.Auth.Svc))

	api.POST("/users", d.Accounts.Register, Require(access.ActionCreate))
	api.GET("/users", d.Accounts.List, Require(access.ActionList))
	api.GET("/users/search", d.Accounts.Search, Require(access.ActionSearch))
	api.GET("/users/:id", d.Accounts.Retrieve, Require(access.ActionRetrieve))
	api.PUT("/users/:id", d.Accounts.Update, Require(access.ActionUpdate))
	api.PATCH("/users/:id", d.Accounts.Update, Require(access.ActionPartialUpdate))
	api.DELETE("/users/:id", d.Accounts.Destroy, Require(access.ActionDestroy))

	api.POST("/token", d.Auth.Token)
	api.POST("/token/refresh", d.Auth.Refresh)
	api.POST("/logout", d.Auth.Logout, Require(access.ActionLogout))
	api.POST("/logout-all", d.Auth.LogoutAll, Require(access.ActionLogoutAll))
	api.PUT("/change-password", d.Accounts.ChangePassword, Require(access.ActionChangePassword))

	api.GET("/email-verify", d.Accounts.VerifyEmail)
	api.POST("/request-reset-email", d.Accounts.RequestResetEmail)
	api.GET("/password-reset/:uidb64/:token", d.Accounts.CheckResetToken)
	api.PATCH("/password-reset-complete", d.Accounts.SetNewPassword)
}
