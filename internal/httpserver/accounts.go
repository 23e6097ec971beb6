package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/car_rental/internal/access"
	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/service"
	"github.com/Skotchmaster/car_rental/internal/transport"
	"github.com/Skotchmaster/car_rental/internal/util"
)

type AccountHTTP struct {
	Svc *service.AccountService
}

func userID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return uint(id), nil
}

func (h *AccountHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_create")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "validation")
		return err
	}

	res, err := h.Svc.Register(ctx, access.FromContext(ctx), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return httpError(err)
	}

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/users/%d", res.User.ID))
	return c.JSON(http.StatusCreated, transport.RegisterResponse{
		UserResponse: transport.UserFromModel(res.User),
		EmailSent:    res.EmailSent,
	})
}

func (h *AccountHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	p := access.FromContext(ctx)

	page, size, paged := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	if !paged {
		users, _, err := h.Svc.List(ctx, p, 0, 0)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, transport.UsersFromModels(users))
	}

	offset, limit := util.Calculate(page, size)
	users, total, err := h.Svc.List(ctx, p, offset, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.UserPage{
		Count:   total,
		Page:    page,
		Size:    limit,
		Results: transport.UsersFromModels(users),
	})
}

func (h *AccountHTTP) Retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := userID(c)
	if err != nil {
		return err
	}
	u, err := h.Svc.Retrieve(ctx, access.FromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.UserFromModel(u))
}

// Update serves PUT and PATCH.
func (h *AccountHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_update")

	id, err := userID(c)
	if err != nil {
		return err
	}
	var req transport.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	partial := c.Request().Method == http.MethodPatch
	u, err := h.Svc.Update(ctx, access.FromContext(ctx), id, service.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
	}, partial)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.UserFromModel(u))
}

func (h *AccountHTTP) Destroy(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.Destroy(ctx, access.FromContext(ctx), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AccountHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_search")

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	from, limit := util.Calculate(page, size)

	res, err := h.Svc.Search(ctx, access.FromContext(ctx), c.QueryParam("q"), from, limit)
	if err != nil {
		l.Warn("search_failed", "error", err)
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AccountHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.Svc.ChangePassword(ctx, access.FromContext(ctx), req.OldPassword, req.Password); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "Password updated successfully"})
}

func (h *AccountHTTP) VerifyEmail(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.Svc.VerifyEmail(ctx, c.QueryParam("token")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"email": "Successfully activated"})
}

func (h *AccountHTTP) RequestResetEmail(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.ResetEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.Svc.RequestPasswordReset(ctx, req.Email); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "We have sent you a link to reset your password"})
}

func (h *AccountHTTP) CheckResetToken(c echo.Context) error {
	ctx := c.Request().Context()
	uidb64, token := c.Param("uidb64"), c.Param("token")

	if _, err := h.Svc.CheckResetToken(ctx, uidb64, token); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.ResetCheckResponse{
		Success: true,
		Message: "Credentials Valid",
		UIDB64:  uidb64,
		Token:   token,
	})
}

func (h *AccountHTTP) SetNewPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.SetNewPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.Svc.SetNewPassword(ctx, req.UIDB64, req.Token, req.Password); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "Password reset success"})
}
