package handlers

import (
	"net/http"
	"strings"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// FavoritesHandler 收藏处理器
type FavoritesHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewFavoritesHandler 创建收藏处理器
func NewFavoritesHandler(cfg *config.Config, db database.DatabaseInterface) *FavoritesHandler {
	return &FavoritesHandler{config: cfg, db: db}
}

// ListFavorites GET /api/favorites
func (h *FavoritesHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	favorites, err := h.db.ListFavorites(user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list favorites")
		return
	}
	if favorites == nil {
		favorites = []models.Favorite{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"favorites": favorites,
		"count":     len(favorites),
	})
}

// AddFavorite POST /api/favorites
//
// 重复收藏是幂等的，项目不存在时返回404。
func (h *FavoritesHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		ItemID   string          `json:"itemId"`
		ItemType models.ItemType `json:"itemType"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		utils.WriteBadRequestResponse(w, "itemId is required")
		return
	}

	var itemName string
	switch req.ItemType {
	case models.ItemFile:
		file, err := h.db.GetFile(req.ItemID)
		if err != nil {
			utils.WriteNotFoundResponse(w, "File not found")
			return
		}
		itemName = file.Name
	case models.ItemFolder:
		folder, err := h.db.GetFolder(req.ItemID)
		if err != nil {
			utils.WriteNotFoundResponse(w, "Folder not found")
			return
		}
		itemName = folder.Name
	default:
		utils.WriteBadRequestResponse(w, "itemType must be 'file' or 'folder'")
		return
	}

	fav := &models.Favorite{
		UserID:   user.ID,
		ItemID:   req.ItemID,
		ItemType: req.ItemType,
		ItemName: itemName,
	}
	if err := h.db.AddFavorite(fav); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to add favorite")
		return
	}

	utils.WriteCreatedResponse(w, fav)
}

// RemoveFavorite DELETE /api/favorites
func (h *FavoritesHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	itemID := utils.GetQueryParam(r, "itemId", "")
	itemType := models.ItemType(utils.GetQueryParam(r, "itemType", string(models.ItemFile)))
	if itemID == "" {
		utils.WriteBadRequestResponse(w, "itemId is required")
		return
	}

	if err := h.db.RemoveFavorite(user.ID, itemID, itemType); err != nil {
		utils.WriteNotFoundResponse(w, "Favorite not found")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"removed": true,
	})
}
