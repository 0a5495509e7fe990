package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s4/server/common/apperr"
	commonauth "s4/server/common/auth"
	"s4/server/files/domain"
	"s4/server/gateway/service"
)

var expiresAt = time.Date(2026, 10, 15, 8, 5, 0, 0, time.UTC)

type stubFiles struct {
	lastLimit int
	lastToken string
	deleted   []string
}

func (s *stubFiles) RequestUploadURL(_ context.Context, principal, key string) (domain.Capability, error) {
	if !domain.InNamespace(key, principal) {
		return domain.Capability{}, apperr.AuthorizationDenied.New("denied")
	}
	return domain.Capability{Key: key, Method: domain.MethodPut, URL: "https://storage.test/" + key, ExpiresAt: expiresAt}, nil
}

func (s *stubFiles) RequestDownloadURL(_ context.Context, principal, key string) (domain.Capability, error) {
	if !domain.InNamespace(key, principal) {
		return domain.Capability{}, apperr.AuthorizationDenied.New("denied")
	}
	return domain.Capability{Key: key, Method: domain.MethodGet, URL: "https://storage.test/" + key, ExpiresAt: expiresAt}, nil
}

func (s *stubFiles) ListFiles(_ context.Context, principal, pageToken string, limit int) (service.ListResult, error) {
	s.lastLimit, s.lastToken = limit, pageToken
	if pageToken == "bad" {
		return service.ListResult{}, apperr.InvalidInput.New("page token")
	}
	return service.ListResult{Files: []domain.FileRecord{{Key: principal + "/a", OwnerID: principal}}, NextPageToken: "next"}, nil
}

func (s *stubFiles) GetRecord(_ context.Context, principal, key string) (domain.FileRecord, error) {
	if key == principal+"/missing" {
		return domain.FileRecord{}, apperr.NotFound.New("file record")
	}
	return domain.FileRecord{Key: key, OwnerID: principal}, nil
}

func (s *stubFiles) Delete(_ context.Context, _ string, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type harness struct {
	router *gin.Engine
	files  *stubFiles
	auth   *commonauth.Service
}

func newHarness() *harness {
	gin.SetMode(gin.TestMode)
	files := &stubFiles{}
	auth := commonauth.NewService("secret", 60)
	r := gin.New()
	NewHandler(files, auth, nil).RegisterRoutes(r)
	return &harness{router: r, files: files, auth: auth}
}

func (h *harness) do(t *testing.T, method, path, principal, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		token, err := h.auth.GenerateToken(principal, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness()
	w := h.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadURL(t *testing.T) {
	h := newHarness()

	w := h.do(t, http.MethodPost, "/api/v1/files/upload-url", "alice", "", map[string]string{"key": "alice/report.pdf"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice/report.pdf", body["key"])
	assert.Equal(t, "PUT", body["method"])
	assert.Equal(t, "https://storage.test/alice/report.pdf", body["url"])
	assert.Equal(t, "2026-10-15T08:05:00Z", body["expiresAt"])
}

func TestDownloadURLDenied(t *testing.T) {
	h := newHarness()
	w := h.do(t, http.MethodPost, "/api/v1/files/download-url", "bob", "", map[string]string{"key": "alice/report.pdf"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "authorization_denied", decode(t, w)["error"])
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	h := newHarness()
	w := h.do(t, http.MethodPost, "/api/v1/files/upload-url", "", "", map[string]string{"key": "alice/report.pdf"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMissingKeyIsInvalidInput(t *testing.T) {
	h := newHarness()
	w := h.do(t, http.MethodPost, "/api/v1/files/upload-url", "alice", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decode(t, w)["error"])
}

func TestListFiles(t *testing.T) {
	h := newHarness()

	w := h.do(t, http.MethodGet, "/api/v1/files?limit=10&pageToken=tok", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, h.files.lastLimit)
	assert.Equal(t, "tok", h.files.lastToken)
	body := decode(t, w)
	assert.Equal(t, "next", body["nextPageToken"])
	assert.Len(t, body["files"], 1)

	w = h.do(t, http.MethodGet, "/api/v1/files?limit=ten", "alice", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/files?pageToken=bad", "alice", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRecord(t *testing.T) {
	h := newHarness()
	w := h.do(t, http.MethodGet, "/api/v1/files/record?key=alice/a", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice/a", decode(t, w)["key"])

	w = h.do(t, http.MethodGet, "/api/v1/files/record?key=alice/missing", "alice", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["error"])
}

func TestAdminDelete(t *testing.T) {
	h := newHarness()

	w := h.do(t, http.MethodDelete, "/api/v1/admin/files?key=alice/a", "alice", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, h.files.deleted)

	w = h.do(t, http.MethodDelete, "/api/v1/admin/files?key=alice/a", "root", commonauth.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"alice/a"}, h.files.deleted)
}
