package analytics

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.ListRange)
	g.GET("/latest", h.Latest)
	g.POST("/snapshots", h.Snapshot)
}

func (h *Handler) Snapshot(c echo.Context) error {
	snap, err := h.svc.Snapshot(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h *Handler) Latest(c echo.Context) error {
	snap, err := h.svc.Latest(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// ListRange defaults to the last 30 days.
func (h *Handler) ListRange(c echo.Context) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from, expected YYYY-MM-DD")
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to, expected YYYY-MM-DD")
		}
		to = t
	}
	items, err := h.svc.ListRange(c.Request().Context(), from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Snapshot{}
	}
	return c.JSON(http.StatusOK, items)
}
