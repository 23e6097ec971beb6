package httpserver

import (
	"errors"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/car_rental/internal/access"
	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/service"
	"github.com/Skotchmaster/car_rental/internal/tokens"
)

const claimsContextKey = "user"

// Authenticate verifies a Bearer access token when one is sent.
// Requests without an Authorization header pass through as anonymous.
func Authenticate(iss *tokens.Issuer) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get(echo.HeaderAuthorization) == ""
		},
		ContextKey:  claimsContextKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (any, error) {
			return iss.ParseAccess(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logging.FromContext(c.Request().Context()).Warn("auth_failed", "status", 401, "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "Given token not valid for any token type").SetInternal(err)
		},
	})
}

// LoadPrincipal resolves verified claims to an active user and stores the
// principal in the request context.
func LoadPrincipal(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get(claimsContextKey).(*tokens.AccessClaims)
			if !ok || claims == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			p, err := auth.Principal(ctx, claims)
			if err != nil {
				if errors.Is(err, service.ErrInvalidToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, "User not found").SetInternal(err)
				}
				if errors.Is(err, service.ErrInactiveUser) {
					return echo.NewHTTPError(http.StatusUnauthorized, "User is inactive").SetInternal(err)
				}
				return err
			}

			ctx = access.IntoContext(ctx, p)
			ctx = logging.IntoContext(ctx, logging.FromContext(ctx).With("user_id", p.UserID))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Require evaluates the action's policy before the handler runs.
func Require(a access.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := access.FromContext(c.Request().Context())
			if err := access.Authorize(a, p); err != nil {
				logging.FromContext(c.Request().Context()).Warn("access_denied", "action", a.String(), "reason", err.Error())
				return httpError(err)
			}
			return next(c)
		}
	}
}
