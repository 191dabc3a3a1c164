package handlers

import (
	"net/http"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// SettingsHandler 个人设置与标签管理处理器
type SettingsHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(cfg *config.Config, db database.DatabaseInterface) *SettingsHandler {
	return &SettingsHandler{config: cfg, db: db}
}

// UpdateProfile PUT /api/settings/profile
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	user, err := h.db.GetUserByID(claims.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	var req struct {
		Name *string `json:"name"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if err := h.db.UpdateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update profile")
		return
	}

	utils.WriteSuccessResponse(w, user)
}

// ChangeEmail PUT /api/settings/email
//
// 需要当前密码确认；换邮箱后旧令牌里的 email 声明会过期失效。
func (h *SettingsHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	user, err := h.db.GetUserByID(claims.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	var req struct {
		NewEmail string `json:"new_email"`
		Password string `json:"password"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.NewEmail))
	if email == "" || !strings.Contains(email, "@") {
		utils.WriteBadRequestResponse(w, "A valid email is required")
		return
	}
	if user.Password != "" {
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
			utils.WriteUnauthorizedResponse(w, "Current password is incorrect")
			return
		}
	}
	if _, err := h.db.GetUserByEmail(email); err == nil {
		utils.WriteConflictResponse(w, "An account with this email already exists")
		return
	}

	user.Email = email
	if err := h.db.UpdateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to change email")
		return
	}

	logActivity(h.db, user, "settings.email_change", "", "", "", email)

	utils.WriteSuccessResponse(w, user)
}

// ChangePassword PUT /api/settings/password
func (h *SettingsHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	user, err := h.db.GetUserByID(claims.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		utils.WriteBadRequestResponse(w, "Password must be at least 8 characters")
		return
	}
	if user.Password != "" {
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)) != nil {
			utils.WriteUnauthorizedResponse(w, "Current password is incorrect")
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to change password")
		return
	}
	user.Password = string(hash)
	if err := h.db.UpdateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to change password")
		return
	}

	logActivity(h.db, user, "settings.password_change", "", "", "", "")

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Password changed",
	})
}

// ==== 标签管理 ====

// ListTags GET /api/tags
func (h *SettingsHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	tags, err := h.db.ListTags()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list tags")
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"tags":  tags,
		"count": len(tags),
	})
}

// CreateTag POST /api/tags
func (h *SettingsHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteBadRequestResponse(w, "Tag name is required")
		return
	}

	tag := &models.Tag{
		Name:      strings.TrimSpace(req.Name),
		Color:     req.Color,
		CreatedBy: user.ID,
	}
	if err := h.db.CreateTag(tag); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create tag")
		return
	}

	utils.WriteCreatedResponse(w, tag)
}

// UpdateTag PUT /api/tags/{tagId}
func (h *SettingsHandler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteBadRequestResponse(w, "Tag name is required")
		return
	}

	tag := &models.Tag{
		ID:    chiRoute.URLParam(r, "tagId"),
		Name:  strings.TrimSpace(req.Name),
		Color: req.Color,
	}
	if err := h.db.UpdateTag(tag); err != nil {
		utils.WriteNotFoundResponse(w, "Tag not found")
		return
	}

	utils.WriteSuccessResponse(w, tag)
}

// DeleteTag DELETE /api/tags/{tagId}
func (h *SettingsHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	if err := h.db.DeleteTag(chiRoute.URLParam(r, "tagId")); err != nil {
		utils.WriteNotFoundResponse(w, "Tag not found")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"deleted": true,
	})
}
