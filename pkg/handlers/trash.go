package handlers

import (
	"net/http"

	chiRoute "github.com/go-chi/chi/v5"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// TrashHandler 回收站处理器（仅管理员）
type TrashHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewTrashHandler 创建回收站处理器
func NewTrashHandler(cfg *config.Config, db database.DatabaseInterface) *TrashHandler {
	return &TrashHandler{config: cfg, db: db}
}

// ListTrash GET /api/trash
func (h *TrashHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	items, err := h.db.ListTrash()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list trash")
		return
	}
	if items == nil {
		items = []models.TrashItem{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// RestoreItem POST /api/trash/{itemId}/restore
func (h *TrashHandler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	itemID := chiRoute.URLParam(r, "itemId")
	if err := h.db.RestoreItem(itemID); err != nil {
		utils.WriteNotFoundResponse(w, "Trash item not found")
		return
	}

	logActivity(h.db, user, "trash.restore", itemID, "", "", "")

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"restored": true,
	})
}

// PurgeItem DELETE /api/trash/{itemId}
//
// 彻底删除，数据无法恢复。
func (h *TrashHandler) PurgeItem(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	itemID := chiRoute.URLParam(r, "itemId")
	if err := h.db.PurgeItem(itemID); err != nil {
		utils.WriteNotFoundResponse(w, "Trash item not found")
		return
	}

	logActivity(h.db, user, "trash.purge", itemID, "", "", "")

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"purged": true,
	})
}

// StorageHandler 存储用量处理器
type StorageHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewStorageHandler 创建存储用量处理器
func NewStorageHandler(cfg *config.Config, db database.DatabaseInterface) *StorageHandler {
	return &StorageHandler{config: cfg, db: db}
}

// GetUsage GET /api/storage
func (h *StorageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	usage, err := h.db.GetStorageUsage()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to compute storage usage")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"usage": usage,
		"quota": h.config.StorageQuota,
	})
}
