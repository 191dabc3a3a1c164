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

// UsersHandler 用户管理处理器（仅管理员）
type UsersHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewUsersHandler 创建用户管理处理器
func NewUsersHandler(cfg *config.Config, db database.DatabaseInterface) *UsersHandler {
	return &UsersHandler{config: cfg, db: db}
}

// ListUsers GET /api/admin/users
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list users")
		return
	}
	if users == nil {
		users = []models.User{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// UpdateUser PUT /api/admin/users/{userId}
//
// 角色与状态变更。管理员不能降级自己，避免把最后一个管理员锁在门外。
func (h *UsersHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	admin, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	userID := chiRoute.URLParam(r, "userId")
	user, err := h.db.GetUserByID(userID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	var req struct {
		Name   *string          `json:"name"`
		Role   *models.UserRole `json:"role"`
		Status *string          `json:"status"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.Role != nil {
		if *req.Role != models.RoleAdmin && *req.Role != models.RoleUser {
			utils.WriteBadRequestResponse(w, "Role must be 'admin' or 'user'")
			return
		}
		if userID == admin.ID && *req.Role != models.RoleAdmin {
			utils.WriteBadRequestResponse(w, "You cannot remove your own admin role")
			return
		}
		user.Role = *req.Role
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Status != nil {
		if *req.Status != "active" && *req.Status != "suspended" {
			utils.WriteBadRequestResponse(w, "Status must be 'active' or 'suspended'")
			return
		}
		if userID == admin.ID && *req.Status != "active" {
			utils.WriteBadRequestResponse(w, "You cannot suspend yourself")
			return
		}
		user.Status = *req.Status
	}

	if err := h.db.UpdateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update user")
		return
	}

	logActivity(h.db, admin, "admin.user_update", "", "", "", user.Email)

	utils.WriteSuccessResponse(w, user)
}

// GetUser GET /api/admin/users/{userId}
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.db.GetUserByID(chiRoute.URLParam(r, "userId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}
	utils.WriteSuccessResponse(w, user)
}

// InviteUser POST /api/admin/users
//
// 管理员直接建立账号；密码通过重置流程由用户自行设置。
func (h *UsersHandler) InviteUser(w http.ResponseWriter, r *http.Request) {
	admin, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Email string          `json:"email"`
		Name  string          `json:"name"`
		Role  models.UserRole `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		utils.WriteBadRequestResponse(w, "A valid email is required")
		return
	}
	if _, err := h.db.GetUserByEmail(email); err == nil {
		utils.WriteConflictResponse(w, "An account with this email already exists")
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		utils.WriteBadRequestResponse(w, "Role must be 'admin' or 'user'")
		return
	}

	user := &models.User{
		Email:  email,
		Name:   req.Name,
		Role:   role,
		Status: "active",
	}
	if err := h.db.CreateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create user")
		return
	}

	logActivity(h.db, admin, "admin.user_invite", "", "", "", user.Email)

	utils.WriteCreatedResponse(w, user)
}
