package handlers

import (
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// GroupsHandler 用户组处理器（仅管理员）
type GroupsHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewGroupsHandler 创建用户组处理器
func NewGroupsHandler(cfg *config.Config, db database.DatabaseInterface) *GroupsHandler {
	return &GroupsHandler{config: cfg, db: db}
}

// ListGroups GET /api/admin/groups
func (h *GroupsHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.db.ListGroups()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list groups")
		return
	}
	if groups == nil {
		groups = []models.UserGroup{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

// CreateGroup POST /api/admin/groups
func (h *GroupsHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	admin, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteBadRequestResponse(w, "Group name is required")
		return
	}

	group := &models.UserGroup{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedBy:   admin.ID,
	}
	if err := h.db.CreateGroup(group); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create group")
		return
	}

	utils.WriteCreatedResponse(w, group)
}

// DeleteGroup DELETE /api/admin/groups/{groupId}
func (h *GroupsHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteGroup(chiRoute.URLParam(r, "groupId")); err != nil {
		utils.WriteNotFoundResponse(w, "Group not found")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"deleted": true,
	})
}

// ListMembers GET /api/admin/groups/{groupId}/members
func (h *GroupsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := chiRoute.URLParam(r, "groupId")
	members, err := h.db.ListGroupMembers(groupID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list group members")
		return
	}

	// 附带用户资料，前端成员列表直接可用
	type memberView struct {
		models.GroupMembership
		Email string `json:"email,omitempty"`
		Name  string `json:"name,omitempty"`
	}
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		v := memberView{GroupMembership: m}
		if u, err := h.db.GetUserByID(m.UserID); err == nil {
			v.Email = u.Email
			v.Name = u.Name
		}
		views = append(views, v)
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"members": views,
		"count":   len(views),
	})
}

// AddMember POST /api/admin/groups/{groupId}/members
func (h *GroupsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID := chiRoute.URLParam(r, "groupId")

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.UserID == "" {
		utils.WriteBadRequestResponse(w, "user_id is required")
		return
	}
	if _, err := h.db.GetUserByID(req.UserID); err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	m := &models.GroupMembership{GroupID: groupID, UserID: req.UserID}
	if err := h.db.AddGroupMember(m); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to add group member")
		return
	}

	utils.WriteCreatedResponse(w, m)
}

// RemoveMember DELETE /api/admin/groups/{groupId}/members/{userId}
func (h *GroupsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := chiRoute.URLParam(r, "groupId")
	userID := chiRoute.URLParam(r, "userId")

	if err := h.db.RemoveGroupMember(groupID, userID); err != nil {
		utils.WriteNotFoundResponse(w, "Membership not found")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"removed": true,
	})
}
