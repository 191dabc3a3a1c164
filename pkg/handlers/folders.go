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

// FoldersHandler 文件夹处理器
type FoldersHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewFoldersHandler 创建文件夹处理器
func NewFoldersHandler(cfg *config.Config, db database.DatabaseInterface) *FoldersHandler {
	return &FoldersHandler{config: cfg, db: db}
}

// ListFolders GET /api/folders
func (h *FoldersHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folders, err := h.db.ListFolders()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list folders")
		return
	}
	if folders == nil {
		folders = []models.Folder{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"folders": folders,
		"count":   len(folders),
	})
}

// GetFolder GET /api/folders/{folderId}
func (h *FoldersHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folder, err := h.db.GetFolder(chiRoute.URLParam(r, "folderId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "Folder not found")
		return
	}

	utils.WriteSuccessResponse(w, folder)
}

// CreateFolder POST /api/folders
//
// 顶层文件夹只有管理员能建；子文件夹需要父文件夹的 CREATE_FOLDER 能力。
func (h *FoldersHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		ParentID    *string `json:"parent_id"`
		Color       string  `json:"color"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteBadRequestResponse(w, "Folder name is required")
		return
	}

	if req.ParentID == nil {
		if !user.IsAdmin() {
			utils.WriteForbiddenResponse(w, "Only administrators can create top-level folders")
			return
		}
	} else {
		if _, err := h.db.GetFolder(*req.ParentID); err != nil {
			utils.WriteNotFoundResponse(w, "Parent folder not found")
			return
		}
		if !hasCapability(h.db, user, *req.ParentID, models.ItemFolder, models.AccessCreateFolder) {
			utils.WriteForbiddenResponse(w, "You do not have permission to create folders here")
			return
		}
	}

	folder := &models.Folder{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		OwnerID:     user.ID,
		ParentID:    req.ParentID,
		Color:       req.Color,
	}
	if err := h.db.CreateFolder(folder); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create folder")
		return
	}

	logActivity(h.db, user, "folder.create", folder.ID, models.ItemFolder, folder.Name, "")

	utils.WriteCreatedResponse(w, folder)
}

// UpdateFolder PUT /api/folders/{folderId}
func (h *FoldersHandler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folder, err := h.db.GetFolder(chiRoute.URLParam(r, "folderId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "Folder not found")
		return
	}
	if !user.IsAdmin() && folder.OwnerID != user.ID {
		utils.WriteForbiddenResponse(w, "You do not have permission to modify this folder")
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Color       *string `json:"color"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			utils.WriteBadRequestResponse(w, "Folder name cannot be empty")
			return
		}
		folder.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		folder.Description = *req.Description
	}
	if req.Color != nil {
		folder.Color = *req.Color
	}

	if err := h.db.UpdateFolder(folder); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update folder")
		return
	}

	logActivity(h.db, user, "folder.update", folder.ID, models.ItemFolder, folder.Name, "")

	utils.WriteSuccessResponse(w, folder)
}

// DeleteFolder DELETE /api/folders/{folderId}
//
// 软删除：文件夹进入回收站，可恢复或彻底清除。
func (h *FoldersHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folderID := chiRoute.URLParam(r, "folderId")
	folder, err := h.db.GetFolder(folderID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Folder not found")
		return
	}
	if !user.IsAdmin() && folder.OwnerID != user.ID {
		utils.WriteForbiddenResponse(w, "You do not have permission to delete this folder")
		return
	}

	if err := h.db.SoftDeleteFolder(folderID, user.ID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete folder")
		return
	}

	logActivity(h.db, user, "folder.delete", folderID, models.ItemFolder, folder.Name, "")

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"deleted": true,
	})
}
