package accessclient

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/models"
)

// scriptedService 受控的请求服务：记录调用并按脚本应答
type scriptedService struct {
	requests  []models.AccessRequest
	createErr error
	created   []CreateRequestInput
	revoked   []models.AccessType
	deleted   []string
}

func (s *scriptedService) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.AccessRequest, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, input)
	req := models.AccessRequest{
		ID:          fmt.Sprintf("req-%d", len(s.created)),
		RequesterID: "u1",
		ItemID:      input.ItemID,
		ItemType:    input.ItemType,
		ItemName:    input.ItemName,
		AccessTypes: input.AccessTypes,
		Status:      models.RequestPending,
	}
	s.requests = append(s.requests, req)
	return &req, nil
}

func (s *scriptedService) ListRequests(ctx context.Context, status models.AccessRequestStatus) ([]models.AccessRequest, error) {
	var out []models.AccessRequest
	for _, r := range s.requests {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *scriptedService) DecideRequest(ctx context.Context, requestID string, status models.AccessRequestStatus) (*models.AccessRequest, error) {
	for i := range s.requests {
		if s.requests[i].ID == requestID {
			s.requests[i].Status = status
			cp := s.requests[i]
			return &cp, nil
		}
	}
	return nil, &APIError{Status: http.StatusNotFound, Message: "Access request not found"}
}

func (s *scriptedService) RevokeAccessType(ctx context.Context, requestID string, accessType models.AccessType) error {
	s.revoked = append(s.revoked, accessType)
	return nil
}

func (s *scriptedService) DeleteRequest(ctx context.Context, requestID string) error {
	s.deleted = append(s.deleted, requestID)
	return nil
}

func TestWorkflowRequestAccess(t *testing.T) {
	svc := &scriptedService{}
	wf := NewWorkflow(svc)
	item := Item{ID: "f1", Type: models.ItemFile}

	req, err := wf.RequestAccess(context.Background(), item, "report.pdf", []models.AccessType{models.AccessDownload})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Len(t, svc.created, 1)
}

func TestWorkflowSkipsDuplicatePending(t *testing.T) {
	svc := &scriptedService{}
	wf := NewWorkflow(svc)
	item := Item{ID: "f1", Type: models.ItemFile}
	types := []models.AccessType{models.AccessDownload}

	_, err := wf.RequestAccess(context.Background(), item, "report.pdf", types)
	require.NoError(t, err)

	// 第二次提交同样的请求被本地拦下，不产生第二行
	_, err = wf.RequestAccess(context.Background(), item, "report.pdf", types)
	assert.ErrorIs(t, err, ErrPendingExists)
	assert.Len(t, svc.created, 1)
}

func TestWorkflowAllowsBroaderRequest(t *testing.T) {
	svc := &scriptedService{}
	wf := NewWorkflow(svc)
	item := Item{ID: "f1", Type: models.ItemFile}

	_, err := wf.RequestAccess(context.Background(), item, "report.pdf", []models.AccessType{models.AccessView})
	require.NoError(t, err)

	// 请求了尚未覆盖的能力，不算重复
	_, err = wf.RequestAccess(context.Background(), item, "report.pdf", []models.AccessType{models.AccessView, models.AccessDownload})
	require.NoError(t, err)
	assert.Len(t, svc.created, 2)
}

func TestWorkflowMapsBackendConflict(t *testing.T) {
	svc := &scriptedService{
		createErr: &APIError{Status: http.StatusConflict, Message: "A pending request for this item already exists"},
	}
	wf := NewWorkflow(svc)
	item := Item{ID: "f1", Type: models.ItemFile}
	types := []models.AccessType{models.AccessDownload}

	_, err := wf.RequestAccess(context.Background(), item, "report.pdf", types)
	assert.ErrorIs(t, err, ErrPendingExists)

	// 409之后本地也记住了未决状态，后续提交直接短路
	svc.createErr = nil
	_, err = wf.RequestAccess(context.Background(), item, "report.pdf", types)
	assert.ErrorIs(t, err, ErrPendingExists)
	assert.Empty(t, svc.created)
}

func TestWorkflowApproveClearsPendingGuard(t *testing.T) {
	svc := &scriptedService{}
	wf := NewWorkflow(svc)
	item := Item{ID: "f1", Type: models.ItemFile}
	types := []models.AccessType{models.AccessDownload}

	req, err := wf.RequestAccess(context.Background(), item, "report.pdf", types)
	require.NoError(t, err)

	approved, err := wf.Approve(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Status)

	// 裁决后可以重新请求（例如之后又被撤销）
	assert.False(t, wf.HasPending(item, types))
}

func TestWorkflowSyncPending(t *testing.T) {
	svc := &scriptedService{
		requests: []models.AccessRequest{
			{
				ID:          "req-existing",
				ItemID:      "f1",
				ItemType:    models.ItemFile,
				AccessTypes: []models.AccessType{models.AccessDownload},
				Status:      models.RequestPending,
			},
		},
	}
	wf := NewWorkflow(svc)
	require.NoError(t, wf.SyncPending(context.Background()))

	_, err := wf.RequestAccess(context.Background(), Item{ID: "f1", Type: models.ItemFile}, "report.pdf",
		[]models.AccessType{models.AccessDownload})
	assert.ErrorIs(t, err, ErrPendingExists)
}

func TestWorkflowRevokeOperations(t *testing.T) {
	svc := &scriptedService{}
	wf := NewWorkflow(svc)

	require.NoError(t, wf.RevokeSpecific(context.Background(), "req-1", models.AccessDownload))
	require.NoError(t, wf.RevokeAll(context.Background(), "req-1"))

	assert.Equal(t, []models.AccessType{models.AccessDownload}, svc.revoked)
	assert.Equal(t, []string{"req-1"}, svc.deleted)
}
