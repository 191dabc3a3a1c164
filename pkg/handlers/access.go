package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// AccessHandler 访问控制处理器：访问检查、请求工作流与授权撤销
type AccessHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewAccessHandler 创建访问控制处理器
func NewAccessHandler(cfg *config.Config, db database.DatabaseInterface) *AccessHandler {
	return &AccessHandler{config: cfg, db: db}
}

// logActivity 记录一条访问工作流活动（失败不阻断主流程）
func logActivity(db database.DatabaseInterface, user *models.User, action, itemID string, itemType models.ItemType, itemName, detail string) {
	entry := &models.ActivityLog{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		UserEmail: user.Email,
		Action:    action,
		ItemID:    itemID,
		ItemType:  itemType,
		ItemName:  itemName,
		Detail:    detail,
	}
	if err := db.AppendActivity(entry); err != nil {
		fmt.Printf("⚠️ Failed to append activity log: %v\n", err)
	}
}

// hasCapability 服务端能力闸门。管理员直接放行，其余用户查已批准授权；
// 查询失败一律按无权限处理。
func hasCapability(db database.DatabaseInterface, user *models.User, itemID string, itemType models.ItemType, t models.AccessType) bool {
	if user.IsAdmin() {
		return true
	}
	granted, err := db.GetGrantedAccessTypes(user.ID, itemID, itemType)
	if err != nil {
		return false
	}
	for _, g := range granted {
		if g == t {
			return true
		}
	}
	return false
}

// parseItemParams 解析 itemId/itemType 查询参数
func parseItemParams(r *http.Request) (itemID string, itemType models.ItemType, err error) {
	itemID = utils.GetQueryParam(r, "itemId", "")
	if itemID == "" {
		return "", "", fmt.Errorf("itemId is required")
	}
	itemType = models.ItemType(utils.GetQueryParam(r, "itemType", string(models.ItemFile)))
	if itemType != models.ItemFile && itemType != models.ItemFolder {
		return "", "", fmt.Errorf("itemType must be 'file' or 'folder'")
	}
	return itemID, itemType, nil
}

// CheckAccess GET /api/access/check
//
// 响应结构由前端契约固定：{hasAccess, accessTypes}，不走统一包装。
// 管理员旁路在这里生效：持 admin 角色的令牌直接返回该类型项目的全部能力。
// 任何查询失败都按无权限处理（fail closed）。
func (h *AccessHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	itemID, itemType, err := parseItemParams(r)
	if err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}

	if user.IsAdmin() {
		utils.WriteRawJSON(w, http.StatusOK, models.AccessCheckResponse{
			HasAccess:   true,
			AccessTypes: models.ValidAccessTypesFor(itemType),
		})
		return
	}

	granted, err := h.db.GetGrantedAccessTypes(user.ID, itemID, itemType)
	if err != nil {
		// 查询失败时不暴露错误细节，按未授权返回
		fmt.Printf("⚠️ Access check query failed for user %s item %s: %v\n", user.ID, itemID, err)
		granted = nil
	}
	if granted == nil {
		granted = []models.AccessType{}
	}

	utils.WriteRawJSON(w, http.StatusOK, models.AccessCheckResponse{
		HasAccess:   len(granted) > 0,
		AccessTypes: granted,
	})
}

// CreateRequest POST /api/access/request
//
// 同一 (requester, item) 已有未决请求时返回 409，前端据此避免重复提交。
func (h *AccessHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		ItemID      string              `json:"itemId"`
		ItemType    models.ItemType     `json:"itemType"`
		ItemName    string              `json:"itemName"`
		AccessTypes []models.AccessType `json:"accessTypes"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		utils.WriteBadRequestResponse(w, "itemId is required")
		return
	}
	if req.ItemType != models.ItemFile && req.ItemType != models.ItemFolder {
		utils.WriteBadRequestResponse(w, "itemType must be 'file' or 'folder'")
		return
	}
	if len(req.AccessTypes) == 0 {
		utils.WriteBadRequestResponse(w, "At least one access type is required")
		return
	}

	// 能力标签必须匹配项目类型（文件只有查看/下载，文件夹只有写入类能力）
	valid := models.ValidAccessTypesFor(req.ItemType)
	for _, t := range req.AccessTypes {
		ok := false
		for _, v := range valid {
			if t == v {
				ok = true
				break
			}
		}
		if !ok {
			utils.WriteBadRequestResponse(w, fmt.Sprintf("Access type %s is not valid for %s items", t, req.ItemType))
			return
		}
	}

	// 管理员不需要请求访问
	if user.IsAdmin() {
		utils.WriteBadRequestResponse(w, "Administrators already have full access")
		return
	}

	if existing, err := h.db.FindPendingAccessRequest(user.ID, req.ItemID, req.ItemType); err == nil && existing != nil {
		utils.WriteConflictResponse(w, "A pending request for this item already exists")
		return
	}

	accessReq := &models.AccessRequest{
		RequesterID:    user.ID,
		RequesterEmail: user.Email,
		ItemID:         req.ItemID,
		ItemType:       req.ItemType,
		ItemName:       req.ItemName,
		AccessTypes:    req.AccessTypes,
		Status:         models.RequestPending,
	}
	if err := h.db.CreateAccessRequest(accessReq); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create access request")
		return
	}

	logActivity(h.db, user, "access.request", req.ItemID, req.ItemType, req.ItemName,
		fmt.Sprintf("requested %s", joinAccessTypes(req.AccessTypes)))

	utils.WriteCreatedResponse(w, accessReq)
}

// ListRequests GET /api/access/requests
//
// 管理员看到全部请求，普通用户只看到自己的。支持 ?status= 过滤。
func (h *AccessHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	all, err := h.db.ListAccessRequests()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list access requests")
		return
	}

	statusFilter := utils.GetQueryParam(r, "status", "")
	requests := make([]models.AccessRequest, 0, len(all))
	for _, req := range all {
		if !user.IsAdmin() && req.RequesterID != user.ID {
			continue
		}
		if statusFilter != "" && string(req.Status) != statusFilter {
			continue
		}
		requests = append(requests, req)
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetRequest GET /api/access/requests/{requestId}
func (h *AccessHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	requestID := chiRoute.URLParam(r, "requestId")
	req, err := h.db.GetAccessRequest(requestID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Access request not found")
		return
	}
	if !user.IsAdmin() && req.RequesterID != user.ID {
		utils.WriteForbiddenResponse(w, "Not your access request")
		return
	}

	utils.WriteSuccessResponse(w, req)
}

// UpdateRequest PUT /api/access/requests/{requestId}
//
// 两种载荷：
//
//	{"status": "approved"|"rejected"}  管理员裁决未决请求
//	{"action": "revoke", "accessType": "DOWNLOAD"}  从已批准请求中摘除单个能力
//
// 摘除最后一个能力等价于整体撤销，请求行被删除。
func (h *AccessHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	if !user.IsAdmin() {
		utils.WriteForbiddenResponse(w, "Admin privileges required")
		return
	}

	requestID := chiRoute.URLParam(r, "requestId")
	req, err := h.db.GetAccessRequest(requestID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Access request not found")
		return
	}

	var body struct {
		Status     models.AccessRequestStatus `json:"status"`
		Action     string                     `json:"action"`
		AccessType models.AccessType          `json:"accessType"`
	}
	if err := utils.ParseJSONBody(r, &body); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	switch {
	case body.Action == "revoke":
		h.revokeAccessType(w, user, req, body.AccessType)
	case body.Status == models.RequestApproved || body.Status == models.RequestRejected:
		h.decideRequest(w, user, req, body.Status)
	default:
		utils.WriteBadRequestResponse(w, "Expected status 'approved'/'rejected' or action 'revoke'")
	}
}

// decideRequest 裁决未决请求
func (h *AccessHandler) decideRequest(w http.ResponseWriter, admin *models.User, req *models.AccessRequest, status models.AccessRequestStatus) {
	if !req.IsPending() {
		utils.WriteConflictResponse(w, fmt.Sprintf("Request is already %s", req.Status))
		return
	}

	now := time.Now()
	req.Status = status
	req.ApprovedBy = &admin.ID
	req.ApprovedAt = &now
	if err := h.db.UpdateAccessRequest(req); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update access request")
		return
	}

	action := "access.approve"
	if status == models.RequestRejected {
		action = "access.reject"
	}
	logActivity(h.db, admin, action, req.ItemID, req.ItemType, req.ItemName,
		fmt.Sprintf("request %s by %s", req.ID, req.RequesterEmail))

	utils.WriteSuccessResponse(w, req)
}

// revokeAccessType 从已批准请求中摘除单个能力
func (h *AccessHandler) revokeAccessType(w http.ResponseWriter, admin *models.User, req *models.AccessRequest, accessType models.AccessType) {
	if !req.IsApproved() {
		utils.WriteConflictResponse(w, "Only approved requests can be revoked")
		return
	}
	if accessType == "" {
		utils.WriteBadRequestResponse(w, "accessType is required for revoke")
		return
	}
	if !req.HasAccessType(accessType) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Request does not carry access type %s", accessType))
		return
	}

	remaining := make([]models.AccessType, 0, len(req.AccessTypes)-1)
	for _, t := range req.AccessTypes {
		if t != accessType {
			remaining = append(remaining, t)
		}
	}

	if len(remaining) == 0 {
		// 最后一个能力被摘除：删除整行而不是留下空授权
		if err := h.db.DeleteAccessRequest(req.ID); err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to revoke access")
			return
		}
		logActivity(h.db, admin, "access.revoke", req.ItemID, req.ItemType, req.ItemName,
			fmt.Sprintf("revoked last access type %s from %s", accessType, req.RequesterEmail))
		utils.WriteSuccessResponse(w, map[string]interface{}{
			"revoked": true,
			"deleted": true,
		})
		return
	}

	req.AccessTypes = remaining
	if err := h.db.UpdateAccessRequest(req); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to revoke access type")
		return
	}
	logActivity(h.db, admin, "access.revoke", req.ItemID, req.ItemType, req.ItemName,
		fmt.Sprintf("revoked %s from %s", accessType, req.RequesterEmail))

	utils.WriteSuccessResponse(w, req)
}

// DeleteRequest DELETE /api/access/requests/{requestId}
//
// 整体撤销：删除请求行，该用户对该项目的对应授权立即消失。
func (h *AccessHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	requestID := chiRoute.URLParam(r, "requestId")
	req, err := h.db.GetAccessRequest(requestID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Access request not found")
		return
	}

	// 管理员可撤销任何请求；用户可取消自己的未决请求
	if !user.IsAdmin() {
		if req.RequesterID != user.ID {
			utils.WriteForbiddenResponse(w, "Not your access request")
			return
		}
		if !req.IsPending() {
			utils.WriteForbiddenResponse(w, "Only pending requests can be cancelled")
			return
		}
	}

	if err := h.db.DeleteAccessRequest(requestID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete access request")
		return
	}

	action := "access.revoke"
	if req.IsPending() {
		action = "access.cancel"
	}
	logActivity(h.db, user, action, req.ItemID, req.ItemType, req.ItemName,
		fmt.Sprintf("request %s removed", req.ID))

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"deleted": true,
	})
}

// ListItemUsers GET /api/access/item-users
//
// 管理端视图：某项目当前持有授权的用户及其能力集合。
func (h *AccessHandler) ListItemUsers(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	if !user.IsAdmin() {
		utils.WriteForbiddenResponse(w, "Admin privileges required")
		return
	}

	itemID, itemType, err := parseItemParams(r)
	if err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}

	approved, err := h.db.ListApprovedForItem(itemID, itemType)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list item users")
		return
	}

	users := make([]models.ItemUserAccess, 0, len(approved))
	for _, req := range approved {
		entry := models.ItemUserAccess{
			UserID:      req.RequesterID,
			Email:       req.RequesterEmail,
			AccessTypes: req.AccessTypes,
			RequestID:   req.ID,
		}
		if u, err := h.db.GetUserByID(req.RequesterID); err == nil {
			entry.Name = u.Name
		}
		users = append(users, entry)
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// joinAccessTypes 拼接能力标签用于日志
func joinAccessTypes(types []models.AccessType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
