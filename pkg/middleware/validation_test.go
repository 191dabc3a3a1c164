package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestContentTypeJSONRejectsWrongType(t *testing.T) {
	h := ContentTypeJSON(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "application/json")
}

func TestContentTypeJSONRequiresHeaderForBody(t *testing.T) {
	h := ContentTypeJSON(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentTypeJSONAllowsCharsetParameter(t *testing.T) {
	h := ContentTypeJSON(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "Application/JSON; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContentTypeJSONIgnoresReads(t *testing.T) {
	h := ContentTypeJSON(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// 空请求体的动作端点（登出、取消订阅）不带Content-Type也能通过
func TestContentTypeJSONAllowsEmptyBody(t *testing.T) {
	h := ContentTypeJSON(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMaxBodySizeCapsReads(t *testing.T) {
	var readErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	h := MaxBodySize(16)(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(strings.Repeat("a", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Error(t, readErr)
	assert.Contains(t, readErr.Error(), "request body too large")
}

func TestMaxBodySizePassesSmallBodies(t *testing.T) {
	var body []byte
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	h := MaxBodySize(1024)(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"ok":true}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}
