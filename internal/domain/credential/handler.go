package credential

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
	"github.com/nursebridge/nursebridge/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireRole(auth.RoleAdmin)

	g := api.Group("/credentials", auth.RequireAuthenticated())
	g.POST("", h.Upload, auth.RequireRole(auth.RoleNurse))
	g.GET("", h.ListByNurse)
	g.GET("/pending", h.ListPending, admin)
	g.POST("/sweep-expired", h.SweepExpired, admin)
	g.GET("/:id", h.Get)
	g.GET("/:id/document", h.Download)
	g.POST("/:id/verify", h.Verify, admin)
	g.POST("/:id/reject", h.Reject, admin)
}

// Upload takes a multipart form with a "file" part and the credential
// metadata as form fields.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	up, err := blobstore.ReadUpload(fh)
	if err != nil {
		return blobstore.MapError(err)
	}

	req := UploadRequest{
		Type:         c.FormValue("type"),
		Number:       c.FormValue("number"),
		IssuingState: c.FormValue("issuing_state"),
	}
	if v := c.FormValue("nurse_id"); v != "" {
		if req.NurseID, err = uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid nurse_id")
		}
	}
	if req.IssuedDate, err = parseDate(c.FormValue("issued_date")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid issued_date, expected YYYY-MM-DD")
	}
	if req.ExpirationDate, err = parseDate(c.FormValue("expiration_date")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid expiration_date, expected YYYY-MM-DD")
	}

	ctx := c.Request().Context()
	cred, err := h.svc.Upload(ctx, auth.IdentityFromContext(ctx), req, up)
	if err != nil {
		if apperr.IsDomain(err) {
			return apperr.ToHTTP(err)
		}
		return blobstore.MapError(err)
	}
	return c.JSON(http.StatusCreated, cred)
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	cred, err := h.svc.Get(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cred)
}

// ListByNurse lists the caller's credentials, or another nurse's for
// administrators via ?nurse_id=.
func (h *Handler) ListByNurse(c echo.Context) error {
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
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByNurse(ctx, caller, nurseID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Verify(c echo.Context) error {
	return h.review(c, h.svc.Verify)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.review(c, h.svc.Reject)
}

func (h *Handler) review(c echo.Context, fn func(ctx context.Context, caller auth.Identity, id uuid.UUID, notes string) (*Credential, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	cred, err := fn(ctx, auth.IdentityFromContext(ctx), id, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cred)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	rc, info, err := h.svc.OpenDocument(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		if apperr.IsDomain(err) {
			return apperr.ToHTTP(err)
		}
		return blobstore.MapError(err)
	}
	defer rc.Close()
	return blobstore.Stream(c, info, rc)
}

func (h *Handler) SweepExpired(c echo.Context) error {
	res, err := h.svc.SweepExpired(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
