package handlers

import (
	"net/http"
	"strconv"
	"time"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// LogsHandler 活动日志与报表处理器（仅管理员）
type LogsHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewLogsHandler 创建日志处理器
func NewLogsHandler(cfg *config.Config, db database.DatabaseInterface) *LogsHandler {
	return &LogsHandler{config: cfg, db: db}
}

// ListLogs GET /api/admin/logs
//
// 支持 ?user=&action=&from=&to=&limit= 过滤，时间为 RFC3339。
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter := models.LogFilter{
		UserEmail: utils.GetQueryParam(r, "user", ""),
		Action:    utils.GetQueryParam(r, "action", ""),
		Limit:     100,
	}
	if v := utils.GetQueryParam(r, "limit", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if v := utils.GetQueryParam(r, "from", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.WriteBadRequestResponse(w, "'from' must be an RFC3339 timestamp")
			return
		}
		filter.From = &t
	}
	if v := utils.GetQueryParam(r, "to", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.WriteBadRequestResponse(w, "'to' must be an RFC3339 timestamp")
			return
		}
		filter.To = &t
	}

	entries, err := h.db.ListActivity(filter)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list activity logs")
		return
	}
	if entries == nil {
		entries = []models.ActivityLog{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"logs":  entries,
		"count": len(entries),
	})
}

// FileActivityReport GET /api/admin/reports/file-activity
//
// 按文件聚合查看/下载次数。
func (h *LogsHandler) FileActivityReport(w http.ResponseWriter, r *http.Request) {
	itemID := utils.GetQueryParam(r, "fileId", "")
	if itemID == "" {
		utils.WriteBadRequestResponse(w, "fileId is required")
		return
	}

	file, err := h.db.GetFile(itemID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "File not found")
		return
	}

	entries, err := h.db.ListActivityByItem(itemID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to load file activity")
		return
	}

	report := models.FileActivityReport{
		FileID:   file.ID,
		FileName: file.Name,
		Entries:  entries,
	}
	for _, e := range entries {
		switch e.Action {
		case "file.view":
			report.Views++
		case "file.download":
			report.Downloads++
		}
	}

	utils.WriteSuccessResponse(w, report)
}

// FileShareReport GET /api/admin/reports/shares
//
// 列出每个项目当前被哪些用户持有哪些能力。
func (h *LogsHandler) FileShareReport(w http.ResponseWriter, r *http.Request) {
	requests, err := h.db.ListAccessRequests()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to load access requests")
		return
	}

	type key struct {
		itemID   string
		itemType models.ItemType
	}
	byItem := map[key]*models.FileShareReport{}
	order := []key{}
	for _, req := range requests {
		if !req.IsApproved() {
			continue
		}
		k := key{req.ItemID, req.ItemType}
		rep, ok := byItem[k]
		if !ok {
			rep = &models.FileShareReport{
				ItemID:   req.ItemID,
				ItemType: req.ItemType,
				ItemName: req.ItemName,
			}
			byItem[k] = rep
			order = append(order, k)
		}
		rep.SharedWith = append(rep.SharedWith, req.RequesterEmail)
		for _, t := range req.AccessTypes {
			seen := false
			for _, existing := range rep.AccessTypes {
				if existing == t {
					seen = true
					break
				}
			}
			if !seen {
				rep.AccessTypes = append(rep.AccessTypes, t)
			}
		}
	}

	reports := make([]models.FileShareReport, 0, len(order))
	for _, k := range order {
		reports = append(reports, *byItem[k])
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}
