package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		UseLocalDB:  true,
		JWTSecret:   "test-secret",
		MaxUploadMB: 10,
		OTPTTL:      10 * time.Minute,
	}
}

func seedUser(t *testing.T, db database.DatabaseInterface, email string, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{Email: email, Role: role, Status: "active"}
	require.NoError(t, db.CreateUser(u))
	return u
}

// asUser 把用户注入请求context，模拟认证中间件
func asUser(r *http.Request, u *models.User) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, u)
	return r.WithContext(ctx)
}

// withURLParam 注入chi路由参数
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chiRoute.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chiRoute.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success, "expected success envelope, got %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func createPendingRequest(t *testing.T, h *AccessHandler, user *models.User, itemID string, types []models.AccessType) models.AccessRequest {
	t.Helper()
	body := map[string]any{
		"itemId":      itemID,
		"itemType":    "file",
		"itemName":    "report.pdf",
		"accessTypes": types,
	}
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/access/request", jsonBody(t, body)), user)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.CreateRequest(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.AccessRequest
	decodeData(t, rec, &created)
	return created
}

func checkAccess(t *testing.T, h *AccessHandler, user *models.User, itemID string) models.AccessCheckResponse {
	t.Helper()
	req := asUser(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/access/check?itemId=%s&itemType=file", itemID), nil), user)
	rec := httptest.NewRecorder()
	h.CheckAccess(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AccessCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCheckAccessFailsClosed(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)

	resp := checkAccess(t, h, user, "unknown-file")
	assert.False(t, resp.HasAccess)
	assert.Empty(t, resp.AccessTypes)
}

func TestCheckAccessAdminBypass(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	resp := checkAccess(t, h, admin, "any-file")
	assert.True(t, resp.HasAccess)
	// 文件的全部有效能力
	assert.ElementsMatch(t, []models.AccessType{models.AccessView, models.AccessDownload}, resp.AccessTypes)
}

func TestRequestApproveCheckFlow(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessDownload})
	assert.Equal(t, models.RequestPending, created.Status)

	// 批准前闸门关闭
	resp := checkAccess(t, h, user, "F1")
	require.False(t, resp.HasAccess)

	// 管理员批准
	req := asUser(httptest.NewRequest(http.MethodPut, "/api/access/requests/"+created.ID,
		jsonBody(t, map[string]string{"status": "approved"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec := httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 下一次检查看到授权
	resp = checkAccess(t, h, user, "F1")
	assert.True(t, resp.HasAccess)
	assert.ElementsMatch(t, []models.AccessType{models.AccessDownload}, resp.AccessTypes)
}

func TestDuplicatePendingRequestConflicts(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)

	createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessDownload})

	body := map[string]any{
		"itemId":      "F1",
		"itemType":    "file",
		"itemName":    "report.pdf",
		"accessTypes": []models.AccessType{models.AccessDownload},
	}
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/access/request", jsonBody(t, body)), user)
	rec := httptest.NewRecorder()
	h.CreateRequest(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvalidAccessTypeForItemType(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)

	// 文件不能请求 UPLOAD
	body := map[string]any{
		"itemId":      "F1",
		"itemType":    "file",
		"accessTypes": []models.AccessType{models.AccessUpload},
	}
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/access/request", jsonBody(t, body)), user)
	rec := httptest.NewRecorder()
	h.CreateRequest(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeSpecificLeavesOtherCapabilities(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessView, models.AccessDownload})

	req := asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"status": "approved"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec := httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// 摘除 DOWNLOAD，保留 VIEW
	req = asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"action": "revoke", "accessType": "DOWNLOAD"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec = httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := checkAccess(t, h, user, "F1")
	assert.True(t, resp.HasAccess)
	assert.ElementsMatch(t, []models.AccessType{models.AccessView}, resp.AccessTypes)
}

func TestRevokeLastCapabilityDeletesRequest(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessDownload})

	req := asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"status": "approved"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec := httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"action": "revoke", "accessType": "DOWNLOAD"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec = httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// 请求行已删除，授权消失
	_, err := db.GetAccessRequest(created.ID)
	assert.Error(t, err)
	resp := checkAccess(t, h, user, "F1")
	assert.False(t, resp.HasAccess)
}

func TestRevokeAllRemovesAllCapabilities(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessView, models.AccessDownload})

	req := asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"status": "approved"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec := httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, checkAccess(t, h, user, "F1").HasAccess)

	req = asUser(httptest.NewRequest(http.MethodDelete, "/", nil), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec = httptest.NewRecorder()
	h.DeleteRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := checkAccess(t, h, user, "F1")
	assert.False(t, resp.HasAccess)
	assert.Empty(t, resp.AccessTypes)
}

func TestDecideRequiresAdmin(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessDownload})

	// 普通用户不能裁决自己的请求
	req := asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"status": "approved"})), user)
	req = withURLParam(req, "requestId", created.ID)
	rec := httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecideAlreadyDecidedConflicts(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessDownload})

	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		req := asUser(httptest.NewRequest(http.MethodPut, "/",
			jsonBody(t, map[string]string{"status": "rejected"})), admin)
		req = withURLParam(req, "requestId", created.ID)
		rec := httptest.NewRecorder()
		h.UpdateRequest(rec, req)
		assert.Equal(t, want, rec.Code, "attempt %d", i+1)
	}
}

func TestListRequestsScopedToRequester(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	alice := seedUser(t, db, "alice@example.com", models.RoleUser)
	bob := seedUser(t, db, "bob@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	createPendingRequest(t, h, alice, "F1", []models.AccessType{models.AccessDownload})
	createPendingRequest(t, h, bob, "F2", []models.AccessType{models.AccessView})

	list := func(u *models.User) int {
		req := asUser(httptest.NewRequest(http.MethodGet, "/api/access/requests", nil), u)
		rec := httptest.NewRecorder()
		h.ListRequests(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Requests []models.AccessRequest `json:"requests"`
		}
		decodeData(t, rec, &out)
		return len(out.Requests)
	}

	assert.Equal(t, 1, list(alice))
	assert.Equal(t, 1, list(bob))
	assert.Equal(t, 2, list(admin))
}

func TestItemUsersListsApprovedHolders(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewAccessHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	created := createPendingRequest(t, h, user, "F1", []models.AccessType{models.AccessDownload})

	req := asUser(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, map[string]string{"status": "approved"})), admin)
	req = withURLParam(req, "requestId", created.ID)
	rec := httptest.NewRecorder()
	h.UpdateRequest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = asUser(httptest.NewRequest(http.MethodGet, "/api/access/item-users?itemId=F1&itemType=file", nil), admin)
	rec = httptest.NewRecorder()
	h.ListItemUsers(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Users []models.ItemUserAccess `json:"users"`
	}
	decodeData(t, rec, &out)
	require.Len(t, out.Users, 1)
	assert.Equal(t, "user@example.com", out.Users[0].Email)
	assert.ElementsMatch(t, []models.AccessType{models.AccessDownload}, out.Users[0].AccessTypes)
}
