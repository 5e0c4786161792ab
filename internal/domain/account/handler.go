package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public auth endpoints and the caller's account.
// /auth/sign-up and /auth/sign-in must be skipped by the JWT middleware.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/sign-up", h.SignUp)
	api.POST("/auth/sign-in", h.SignIn)
	api.GET("/account/me", h.Me, auth.RequireAuthenticated())
}

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.SignUp(c.Request().Context(), auth.IdentityFromContext(c.Request().Context()), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *Handler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.SignIn(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) Me(c echo.Context) error {
	a, err := h.svc.Me(c.Request().Context(), auth.IdentityFromContext(c.Request().Context()))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
