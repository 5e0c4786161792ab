package blobstore

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

// Handler exposes the object store to administrators for inspection of
// stored documents and their version history.
type Handler struct {
	store BlobStore
}

func NewHandler(store BlobStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/storage", auth.RequireRole(auth.RoleAdmin))
	g.GET("/objects", h.ListObjects)
	g.GET("/objects/versions", h.ListVersions)
	g.GET("/objects/download", h.Download)
}

type listResponse struct {
	Items []ObjectInfo `json:"items"`
	Total int          `json:"total"`
}

func (h *Handler) ListObjects(c echo.Context) error {
	prefix := c.QueryParam("prefix")
	items, err := h.store.List(c.Request().Context(), prefix)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []ObjectInfo{}
	}
	return c.JSON(http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (h *Handler) ListVersions(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	items, err := h.store.Versions(c.Request().Context(), key)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (h *Handler) Download(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}

	ctx := c.Request().Context()
	var (
		rc   io.ReadCloser
		info *ObjectInfo
		err  error
	)
	if v := c.QueryParam("version"); v != "" {
		rc, info, err = h.store.GetVersion(ctx, key, v)
	} else {
		rc, info, err = h.store.Get(ctx, key)
	}
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()

	return Stream(c, info, rc)
}

// Stream writes an object to the response as an attachment.
func Stream(c echo.Context, info *ObjectInfo, body io.Reader) error {
	_, _, file, err := ParseKey(info.Key)
	if err != nil {
		file = "download"
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file))
	c.Response().Header().Set("X-Object-Version", info.VersionID)
	return c.Stream(http.StatusOK, info.ContentType, body)
}

// MapError converts storage errors to HTTP errors.
func MapError(err error) error { return mapError(err) }

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrVersionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
