package blobstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestHandler_ListAndDownload(t *testing.T) {
	store, _ := newTestStore(t, true, true)
	key, _ := CredentialKey(uuid.New(), "iv-cert.pdf")
	v1, err := store.Put(context.Background(), key, "application/pdf", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = store.Put(context.Background(), key, "application/pdf", strings.NewReader("v2"))
	require.NoError(t, err)

	h := NewHandler(store)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/storage/objects?prefix=nurse-credentials/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListObjects(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)

	req = httptest.NewRequest(http.MethodGet, "/storage/objects/versions?key="+url.QueryEscape(key), nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.ListVersions(e.NewContext(req, rec)))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Total)

	req = httptest.NewRequest(http.MethodGet, "/storage/objects/download?key="+url.QueryEscape(key)+"&version="+v1.VersionID, nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.Download(e.NewContext(req, rec)))
	require.Equal(t, "v1", rec.Body.String())
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "iv-cert.pdf")
}

func TestHandler_DownloadErrors(t *testing.T) {
	store, _ := newTestStore(t, false, false)
	h := NewHandler(store)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/storage/objects/download", nil)
	err := h.Download(e.NewContext(req, httptest.NewRecorder()))
	requireHTTPStatus(t, err, http.StatusBadRequest)

	key, _ := VisitDocumentKey(uuid.New(), "missing.txt")
	req = httptest.NewRequest(http.MethodGet, "/storage/objects/download?key="+url.QueryEscape(key), nil)
	err = h.Download(e.NewContext(req, httptest.NewRecorder()))
	requireHTTPStatus(t, err, http.StatusNotFound)
}

func requireHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	require.Equal(t, code, httpErr.Code)
}
