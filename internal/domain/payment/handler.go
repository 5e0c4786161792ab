package payment

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/payments", auth.RequireAuthenticated())
	g.GET("", h.List)
	g.POST("", h.Create, auth.RequireRole(auth.RolePharmacy))
	g.GET("/earnings", h.Earnings)
	g.GET("/:id", h.Get)

	admin := auth.RequireRole(auth.RoleAdmin)
	g.POST("/:id/processing", h.settleFunc((*Service).MarkProcessing), admin)
	g.POST("/:id/paid", h.settleFunc((*Service).MarkPaid), admin)
	g.POST("/:id/failed", h.settleFunc((*Service).MarkFailed), admin)
	g.POST("/:id/refund", h.settleFunc((*Service).Refund), admin)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.Create(ctx, auth.IdentityFromContext(ctx), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Get(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	caller := auth.IdentityFromContext(ctx)

	f := Filter{Status: c.QueryParam("status")}
	for param, dst := range map[string]**uuid.UUID{"nurse_id": &f.NurseID, "payer_id": &f.PayerID, "visit_id": &f.VisitID} {
		v := c.QueryParam(param)
		if v == "" {
			continue
		}
		id := caller.UserID
		if v != "me" {
			parsed, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
			}
			id = parsed
		}
		*dst = &id
	}

	items, total, err := h.svc.List(ctx, caller, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Earnings defaults to the caller; admins may pass ?nurse_id=.
func (h *Handler) Earnings(c echo.Context) error {
	ctx := c.Request().Context()
	caller := auth.IdentityFromContext(ctx)
	nurseID := caller.UserID
	if v := c.QueryParam("nurse_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid nurse_id")
		}
		nurseID = id
	}
	e, err := h.svc.Earnings(ctx, caller, nurseID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

type settleOp func(s *Service, ctx context.Context, caller auth.Identity, id uuid.UUID, req SettleRequest) (*Payment, error)

func (h *Handler) settleFunc(op settleOp) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		var req SettleRequest
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&req); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		ctx := c.Request().Context()
		p, err := op(h.svc, ctx, auth.IdentityFromContext(ctx), id, req)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, p)
	}
}
