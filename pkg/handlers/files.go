package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// FilesHandler 文件处理器：上传、下载、预览与元数据
type FilesHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewFilesHandler 创建文件处理器
func NewFilesHandler(cfg *config.Config, db database.DatabaseInterface) *FilesHandler {
	return &FilesHandler{config: cfg, db: db}
}

// ListFiles GET /api/folders/{folderId}/files
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folderID := chiRoute.URLParam(r, "folderId")
	if _, err := h.db.GetFolder(folderID); err != nil {
		utils.WriteNotFoundResponse(w, "Folder not found")
		return
	}

	files, err := h.db.ListFilesByFolder(folderID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list files")
		return
	}
	if files == nil {
		files = []models.File{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// UploadFile POST /api/folders/{folderId}/files
//
// multipart 上传。需要目标文件夹的 UPLOAD 能力，且不能超出存储配额。
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
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
	if !hasCapability(h.db, user, folderID, models.ItemFolder, models.AccessUpload) {
		utils.WriteForbiddenResponse(w, "You do not have upload permission for this folder")
		return
	}

	maxBytes := h.config.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid multipart upload or file too large")
		return
	}

	src, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteBadRequestResponse(w, "Missing 'file' form field")
		return
	}
	defer src.Close()

	if usage, err := h.db.GetStorageUsage(); err == nil && h.config.StorageQuota > 0 {
		if usage.TotalBytes+header.Size > h.config.StorageQuota {
			utils.WriteErrorResponse(w, http.StatusInsufficientStorage, "Storage quota exceeded")
			return
		}
	}

	if err := os.MkdirAll(h.config.StorageDir, 0o755); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Storage is unavailable")
		return
	}
	storagePath := filepath.Join(h.config.StorageDir, uuid.New().String())
	dst, err := os.Create(storagePath)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to store file")
		return
	}
	written, err := io.Copy(dst, src)
	dst.Close()
	if err != nil {
		os.Remove(storagePath)
		utils.WriteInternalServerErrorResponse(w, "Failed to store file")
		return
	}

	file := &models.File{
		FolderID:    folderID,
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   written,
		StoragePath: storagePath,
		UploadedBy:  user.ID,
	}
	if err := h.db.CreateFile(file); err != nil {
		os.Remove(storagePath)
		utils.WriteInternalServerErrorResponse(w, "Failed to save file record")
		return
	}

	logActivity(h.db, user, "file.upload", file.ID, models.ItemFile, file.Name,
		fmt.Sprintf("%d bytes into %s", written, folder.Name))

	utils.WriteCreatedResponse(w, file)
}

// GetFile GET /api/files/{fileId}
//
// 元数据查看需要文件的 VIEW 能力，查看动作计入活动日志。
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	file, err := h.db.GetFile(chiRoute.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "File not found")
		return
	}
	if !hasCapability(h.db, user, file.ID, models.ItemFile, models.AccessView) {
		utils.WriteForbiddenResponse(w, "You do not have view permission for this file")
		return
	}

	logActivity(h.db, user, "file.view", file.ID, models.ItemFile, file.Name, "")

	utils.WriteSuccessResponse(w, file)
}

// DownloadFile GET /api/files/{fileId}/download
//
// 下载闸门在服务端强制执行：没有 DOWNLOAD 能力的用户拿不到字节流，
// 管理员旁路同样适用。
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	file, err := h.db.GetFile(chiRoute.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "File not found")
		return
	}
	if !hasCapability(h.db, user, file.ID, models.ItemFile, models.AccessDownload) {
		utils.WriteForbiddenResponse(w, "You do not have download permission for this file")
		return
	}

	f, err := os.Open(file.StoragePath)
	if err != nil {
		utils.WriteNotFoundResponse(w, "File content is missing")
		return
	}
	defer f.Close()

	logActivity(h.db, user, "file.download", file.ID, models.ItemFile, file.Name, "")

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", file.SizeBytes))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		fmt.Printf("⚠️ Download stream interrupted for file %s: %v\n", file.ID, err)
	}
}

// UpdateFile PUT /api/files/{fileId}
//
// 重命名与标签编辑，上传者或管理员可用。
func (h *FilesHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	file, err := h.db.GetFile(chiRoute.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "File not found")
		return
	}
	if !user.IsAdmin() && file.UploadedBy != user.ID {
		utils.WriteForbiddenResponse(w, "You do not have permission to modify this file")
		return
	}

	var req struct {
		Name *string   `json:"name"`
		Tags *[]string `json:"tags"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			utils.WriteBadRequestResponse(w, "File name cannot be empty")
			return
		}
		file.Name = strings.TrimSpace(*req.Name)
	}
	if req.Tags != nil {
		file.Tags = *req.Tags
	}

	if err := h.db.UpdateFile(file); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update file")
		return
	}

	logActivity(h.db, user, "file.update", file.ID, models.ItemFile, file.Name, "")

	utils.WriteSuccessResponse(w, file)
}

// DeleteFile DELETE /api/files/{fileId}
//
// 软删除：文件进入回收站，磁盘内容在彻底清除前保留。
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	file, err := h.db.GetFile(chiRoute.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteNotFoundResponse(w, "File not found")
		return
	}
	if !user.IsAdmin() && file.UploadedBy != user.ID {
		utils.WriteForbiddenResponse(w, "You do not have permission to delete this file")
		return
	}

	if err := h.db.SoftDeleteFile(file.ID, user.ID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete file")
		return
	}

	logActivity(h.db, user, "file.delete", file.ID, models.ItemFile, file.Name, "")

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"deleted": true,
	})
}
