package visit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
	"github.com/nursebridge/nursebridge/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	pharmacy := auth.RequireRole(auth.RolePharmacy)
	nurse := auth.RequireRole(auth.RoleNurse)

	v := api.Group("/visits", auth.RequireAuthenticated())
	v.GET("", h.List)
	v.POST("", h.Create, pharmacy)
	v.GET("/jobs", h.JobBoard, nurse)
	v.GET("/:id", h.Get)
	v.PUT("/:id", h.Update, pharmacy)
	v.DELETE("/:id", h.Delete, pharmacy)
	v.PUT("/:id/status", h.SetStatus)
	v.POST("/:id/post", h.Post, pharmacy)
	v.POST("/:id/confirm", h.Confirm)
	v.POST("/:id/complete", h.Complete)
	v.POST("/:id/cancel", h.Cancel, pharmacy)
	v.PUT("/:id/documentation", h.SaveDocumentation, nurse)
	v.POST("/:id/documents", h.UploadDocument, nurse)
	v.GET("/:id/documents/:file", h.DownloadDocument)
	v.POST("/:id/applications", h.Apply, nurse)
	v.GET("/:id/applications", h.ListApplications, pharmacy)

	a := api.Group("/applications", auth.RequireAuthenticated())
	a.GET("/mine", h.ListMyApplications, nurse)
	a.POST("/:id/withdraw", h.Withdraw, nurse)
	a.POST("/:id/accept", h.Accept, pharmacy)
	a.POST("/:id/reject", h.Reject, pharmacy)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Visit handlers --

func (h *Handler) Create(c echo.Context) error {
	var v Visit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.Create(ctx, auth.IdentityFromContext(ctx), &v); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var v Visit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	updated, err := h.svc.Update(ctx, auth.IdentityFromContext(ctx), id, &v)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.IdentityFromContext(ctx), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List accepts "me" for requester_id and assigned_nurse_id.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	caller := auth.IdentityFromContext(ctx)

	f := Filter{Status: c.QueryParam("status"), State: c.QueryParam("state")}
	var err error
	if f.RequesterID, err = idParam(c.QueryParam("requester_id"), caller); err != nil {
		return err
	}
	if f.AssignedNurseID, err = idParam(c.QueryParam("assigned_nurse_id"), caller); err != nil {
		return err
	}
	items, total, err := h.svc.List(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func idParam(v string, caller auth.Identity) (*uuid.UUID, error) {
	switch v {
	case "":
		return nil, nil
	case "me":
		id := caller.UserID
		return &id, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id filter: "+v)
	}
	return &id, nil
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	v, err := h.svc.SetStatus(ctx, auth.IdentityFromContext(ctx), id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Post(c echo.Context) error     { return h.shortcut(c, h.svc.Post) }
func (h *Handler) Confirm(c echo.Context) error  { return h.shortcut(c, h.svc.Confirm) }
func (h *Handler) Complete(c echo.Context) error { return h.shortcut(c, h.svc.Complete) }
func (h *Handler) Cancel(c echo.Context) error   { return h.shortcut(c, h.svc.Cancel) }

type statusFunc func(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Visit, error)

func (h *Handler) shortcut(c echo.Context, fn statusFunc) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := fn(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) JobBoard(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := JobQuery{SortBy: c.QueryParam("sort")}
	if v := c.QueryParam("max_distance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid max_distance")
		}
		q.MaxDistanceMiles = d
	}
	lat, lng := c.QueryParam("lat"), c.QueryParam("lng")
	if lat != "" || lng != "" {
		la, err1 := strconv.ParseFloat(lat, 64)
		ln, err2 := strconv.ParseFloat(lng, 64)
		if err1 != nil || err2 != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "lat and lng must both be numbers")
		}
		q.Origin = &Origin{Latitude: la, Longitude: ln}
	}
	ctx := c.Request().Context()
	jobs, total, err := h.svc.JobBoard(ctx, auth.IdentityFromContext(ctx), q, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(jobs, total, pg.Limit, pg.Offset))
}

func (h *Handler) SaveDocumentation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DocumentationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	v, err := h.svc.SaveDocumentation(ctx, auth.IdentityFromContext(ctx), id, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UploadDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	up, err := blobstore.ReadUpload(fh)
	if err != nil {
		return blobstore.MapError(err)
	}
	ctx := c.Request().Context()
	v, info, err := h.svc.UploadDocument(ctx, auth.IdentityFromContext(ctx), id, up)
	if err != nil {
		if apperr.IsDomain(err) {
			return apperr.ToHTTP(err)
		}
		return blobstore.MapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"visit": v, "object": info})
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rc, info, err := h.svc.OpenDocument(ctx, auth.IdentityFromContext(ctx), id, c.Param("file"))
	if err != nil {
		if apperr.IsDomain(err) {
			return apperr.ToHTTP(err)
		}
		return blobstore.MapError(err)
	}
	defer rc.Close()
	return blobstore.Stream(c, info, rc)
}

// -- Application handlers --

func (h *Handler) Apply(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, err := h.svc.Apply(ctx, auth.IdentityFromContext(ctx), id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListApplications(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListApplications(ctx, auth.IdentityFromContext(ctx), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListMyApplications(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListMyApplications(ctx, auth.IdentityFromContext(ctx), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Withdraw(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.Withdraw(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Accept(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, v, err := h.svc.Accept(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"application": a, "visit": v})
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.Reject(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
