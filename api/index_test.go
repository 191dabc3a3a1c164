package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

func routerConfig() *config.Config {
	return &config.Config{
		Environment:        "test",
		Port:               "3000",
		UseLocalDB:         true,
		JWTSecret:          "test-secret",
		MaxUploadMB:        10,
		OTPTTL:             10 * time.Minute,
		AccessPollInterval: 10 * time.Second,
	}
}

func TestRouterRejectsNonJSONBody(t *testing.T) {
	router := NewRouter(routerConfig(), database.NewLocalDatabase())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("email=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "application/json")
}

func TestRouterAcceptsJSONRegistration(t *testing.T) {
	router := NewRouter(routerConfig(), database.NewLocalDatabase())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"alice@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// multipart上传路由不受JSON Content-Type校验影响
func TestRouterUploadRouteExemptFromJSONGate(t *testing.T) {
	cfg := routerConfig()
	router := NewRouter(cfg, database.NewLocalDatabase())

	access, _, _, err := utils.NewJWTService(cfg.JWTSecret).
		GenerateTokenPair("admin-1", "admin@example.com", models.RoleAdmin)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/folders/no-such-folder/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// 文件夹不存在是预期失败，但不能被JSON校验拦下
	assert.NotContains(t, rec.Body.String(), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}
