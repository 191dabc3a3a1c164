package accessclient

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"dataroom-backend/pkg/models"
)

// ErrPendingExists is returned when an identical request is already
// awaiting an admin decision; the caller should not submit again.
var ErrPendingExists = errors.New("a pending request for this item already exists")

// RequestService is the slice of the client the workflow depends on.
// Tests substitute a scripted implementation.
type RequestService interface {
	CreateRequest(ctx context.Context, input CreateRequestInput) (*models.AccessRequest, error)
	ListRequests(ctx context.Context, status models.AccessRequestStatus) ([]models.AccessRequest, error)
	DecideRequest(ctx context.Context, requestID string, status models.AccessRequestStatus) (*models.AccessRequest, error)
	RevokeAccessType(ctx context.Context, requestID string, accessType models.AccessType) error
	DeleteRequest(ctx context.Context, requestID string) error
}

// Workflow orchestrates the request/approval/revocation lifecycle.
//
// It never flips a request's status locally: after every mutating call the backend
// remains the source of truth and the poller (or an explicit refresh)
// re-fetches grants. The only local bookkeeping is the set of known
// pending requests, used to skip duplicate submissions.
type Workflow struct {
	svc RequestService

	mu      sync.Mutex
	pending map[string][]models.AccessType // item key → requested types
}

// NewWorkflow creates a workflow over a request service.
func NewWorkflow(svc RequestService) *Workflow {
	return &Workflow{
		svc:     svc,
		pending: make(map[string][]models.AccessType),
	}
}

// SyncPending reloads the known-pending set from the backend, so the
// duplicate guard survives page reloads.
func (wf *Workflow) SyncPending(ctx context.Context) error {
	requests, err := wf.svc.ListRequests(ctx, models.RequestPending)
	if err != nil {
		return err
	}

	wf.mu.Lock()
	defer wf.mu.Unlock()
	wf.pending = make(map[string][]models.AccessType, len(requests))
	for _, r := range requests {
		wf.pending[Item{ID: r.ItemID, Type: r.ItemType}.key()] = r.AccessTypes
	}
	return nil
}

// HasPending reports whether all given types are already covered by a
// known pending request for the item.
func (wf *Workflow) HasPending(item Item, types []models.AccessType) bool {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	known, ok := wf.pending[item.key()]
	if !ok {
		return false
	}
	for _, t := range types {
		covered := false
		for _, k := range known {
			if k == t {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// RequestAccess submits a new access request. A submission fully covered
// by a known pending request is skipped with ErrPendingExists; a backend
// 409 (another client already submitted) is mapped to the same error and
// recorded so the next attempt is skipped locally.
func (wf *Workflow) RequestAccess(ctx context.Context, item Item, itemName string, types []models.AccessType) (*models.AccessRequest, error) {
	if len(types) == 0 {
		return nil, errors.New("at least one access type is required")
	}
	if wf.HasPending(item, types) {
		return nil, ErrPendingExists
	}

	req, err := wf.svc.CreateRequest(ctx, CreateRequestInput{
		ItemID:      item.ID,
		ItemType:    item.Type,
		ItemName:    itemName,
		AccessTypes: types,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			wf.rememberPending(item, types)
			return nil, ErrPendingExists
		}
		return nil, err
	}

	wf.rememberPending(item, req.AccessTypes)
	return req, nil
}

func (wf *Workflow) rememberPending(item Item, types []models.AccessType) {
	wf.mu.Lock()
	wf.pending[item.key()] = types
	wf.mu.Unlock()
}

// forgetPending 请求裁决后清除本地未决标记
func (wf *Workflow) forgetPending(req *models.AccessRequest) {
	if req == nil {
		return
	}
	wf.mu.Lock()
	delete(wf.pending, Item{ID: req.ItemID, Type: req.ItemType}.key())
	wf.mu.Unlock()
}

// Approve transitions a pending request to approved (admin only).
func (wf *Workflow) Approve(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	req, err := wf.svc.DecideRequest(ctx, requestID, models.RequestApproved)
	if err != nil {
		return nil, err
	}
	wf.forgetPending(req)
	return req, nil
}

// Reject transitions a pending request to rejected (admin only).
func (wf *Workflow) Reject(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	req, err := wf.svc.DecideRequest(ctx, requestID, models.RequestRejected)
	if err != nil {
		return nil, err
	}
	wf.forgetPending(req)
	return req, nil
}

// RevokeAll deletes the request record, removing every capability it
// granted (admin only).
func (wf *Workflow) RevokeAll(ctx context.Context, requestID string) error {
	return wf.svc.DeleteRequest(ctx, requestID)
}

// RevokeSpecific removes one capability tag from an approved request,
// leaving the rest intact (admin only).
func (wf *Workflow) RevokeSpecific(ctx context.Context, requestID string, accessType models.AccessType) error {
	return wf.svc.RevokeAccessType(ctx, requestID, accessType)
}
