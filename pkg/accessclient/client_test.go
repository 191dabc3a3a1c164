package accessclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/models"
)

func TestClientFetchAccessRawShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/access/check", r.URL.Path)
		assert.Equal(t, "f1", r.URL.Query().Get("itemId"))
		assert.Equal(t, "file", r.URL.Query().Get("itemType"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		// 访问检查端点不带统一包装
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"hasAccess":   true,
			"accessTypes": []string{"VIEW", "DOWNLOAD"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, userSession())
	resp, err := c.FetchAccess(context.Background(), "f1", models.ItemFile)
	require.NoError(t, err)
	assert.True(t, resp.HasAccess)
	assert.ElementsMatch(t, []models.AccessType{models.AccessView, models.AccessDownload}, resp.AccessTypes)
}

func TestClientUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/access/request", r.URL.Path)

		var body CreateRequestInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "f1", body.ItemID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"id":           "req-1",
				"item_id":      body.ItemID,
				"item_type":    body.ItemType,
				"access_types": body.AccessTypes,
				"status":       "pending",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, userSession())
	req, err := c.CreateRequest(context.Background(), CreateRequestInput{
		ItemID:      "f1",
		ItemType:    models.ItemFile,
		ItemName:    "report.pdf",
		AccessTypes: []models.AccessType{models.AccessDownload},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, models.RequestPending, req.Status)
}

func TestClientSurfacesBackendMessageVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "A pending request for this item already exists",
			"error": map[string]any{
				"code":    "CONFLICT",
				"message": "A pending request for this item already exists",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, userSession())
	_, err := c.CreateRequest(context.Background(), CreateRequestInput{
		ItemID:      "f1",
		ItemType:    models.ItemFile,
		AccessTypes: []models.AccessType{models.AccessDownload},
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	// 错误信息原样透传给用户
	assert.Equal(t, "A pending request for this item already exists", err.Error())
}

func TestClientListRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"requests": []map[string]any{
					{"id": "req-1", "status": "pending"},
					{"id": "req-2", "status": "pending"},
				},
				"count": 2,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, userSession())
	requests, err := c.ListRequests(context.Background(), models.RequestPending)
	require.NoError(t, err)
	assert.Len(t, requests, 2)
}

func TestClientContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, userSession())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchAccess(ctx, "f1", models.ItemFile)
	assert.Error(t, err)
}
