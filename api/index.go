package handler

import (
	"fmt"
	"net/http"
	"time"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/handlers"
	customMiddleware "dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler 是Serverless函数的入口点
// 单体路由模式：所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 获取数据库连接（单例连接池）
	db := database.GetDatabase(database.DatabaseConfig{
		UseLocalDB:  cfg.UseLocalDB,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})

	// 创建Chi路由器
	router := NewRouter(cfg, db)

	// 将请求传递给Chi路由器处理
	router.ServeHTTP(w, r)
}

// NewRouter 组装完整的API路由器，独立进程和Serverless入口共用
func NewRouter(cfg *config.Config, db database.DatabaseInterface) *chi.Mux {
	router := chi.NewRouter()
	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件
	router.Use(middleware.Timeout(25 * time.Second))

	// 全局请求体上限：略高于单文件上限，上传处理器另有精确限制
	router.Use(customMiddleware.MaxBodySize((cfg.MaxUploadMB + 1) << 20))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	authHandler := handlers.NewAuthHandler(cfg, db)
	accessHandler := handlers.NewAccessHandler(cfg, db)
	foldersHandler := handlers.NewFoldersHandler(cfg, db)
	filesHandler := handlers.NewFilesHandler(cfg, db)
	favoritesHandler := handlers.NewFavoritesHandler(cfg, db)
	trashHandler := handlers.NewTrashHandler(cfg, db)
	storageHandler := handlers.NewStorageHandler(cfg, db)
	usersHandler := handlers.NewUsersHandler(cfg, db)
	logsHandler := handlers.NewLogsHandler(cfg, db)
	settingsHandler := handlers.NewSettingsHandler(cfg, db)
	groupsHandler := handlers.NewGroupsHandler(cfg, db)
	billingHandler := handlers.NewBillingHandler(cfg, db)
	webhookHandler := handlers.NewWebhookHandler(cfg, db)

	// 健康检查端点
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := db.HealthCheck(); err != nil {
			status = "degraded"
		}
		utils.WriteSuccessResponse(w, map[string]interface{}{
			"service": "dataroom-backend",
			"status":  status,
		})
	})

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	// API路由组
	router.Route("/api", func(r chi.Router) {
		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Use(customMiddleware.ContentTypeJSON)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/request-otp", authHandler.RequestOTP)
			r.Post("/verify-otp", authHandler.VerifyOTP)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
		})

		// 计划列表公开，定价页无需登录
		r.Get("/billing/plans", billingHandler.ListPlans)
		r.With(customMiddleware.ContentTypeJSON).Post("/billing/validate-coupon", billingHandler.ValidateCoupon)

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))

			r.Get("/auth/me", authHandler.Me)

			// 访问控制：检查、请求工作流、授权撤销
			r.Route("/access", func(r chi.Router) {
				r.Use(customMiddleware.ContentTypeJSON)
				r.Get("/check", accessHandler.CheckAccess)
				r.Post("/request", accessHandler.CreateRequest)
				r.Get("/requests", accessHandler.ListRequests)
				r.Get("/requests/{requestId}", accessHandler.GetRequest)
				r.Put("/requests/{requestId}", accessHandler.UpdateRequest)
				r.Delete("/requests/{requestId}", accessHandler.DeleteRequest)
				r.Get("/item-users", accessHandler.ListItemUsers)
			})

			// 文件夹与文件
			// 上传走 multipart/form-data，不挂JSON校验
			r.Route("/folders", func(r chi.Router) {
				r.Get("/", foldersHandler.ListFolders)
				r.With(customMiddleware.ContentTypeJSON).Post("/", foldersHandler.CreateFolder)
				r.Get("/{folderId}", foldersHandler.GetFolder)
				r.With(customMiddleware.ContentTypeJSON).Put("/{folderId}", foldersHandler.UpdateFolder)
				r.Delete("/{folderId}", foldersHandler.DeleteFolder)
				r.Get("/{folderId}/files", filesHandler.ListFiles)
				r.Post("/{folderId}/files", filesHandler.UploadFile)
			})
			r.Route("/files", func(r chi.Router) {
				r.Use(customMiddleware.ContentTypeJSON)
				r.Get("/{fileId}", filesHandler.GetFile)
				r.Get("/{fileId}/download", filesHandler.DownloadFile)
				r.Put("/{fileId}", filesHandler.UpdateFile)
				r.Delete("/{fileId}", filesHandler.DeleteFile)
			})

			// 收藏
			r.Route("/favorites", func(r chi.Router) {
				r.Use(customMiddleware.ContentTypeJSON)
				r.Get("/", favoritesHandler.ListFavorites)
				r.Post("/", favoritesHandler.AddFavorite)
				r.Delete("/", favoritesHandler.RemoveFavorite)
			})

			// 存储用量
			r.Get("/storage", storageHandler.GetUsage)

			// 标签
			r.Route("/tags", func(r chi.Router) {
				r.Use(customMiddleware.ContentTypeJSON)
				r.Get("/", settingsHandler.ListTags)
				r.Post("/", settingsHandler.CreateTag)
				r.Put("/{tagId}", settingsHandler.UpdateTag)
				r.Delete("/{tagId}", settingsHandler.DeleteTag)
			})

			// 个人设置
			r.Route("/settings", func(r chi.Router) {
				r.Use(customMiddleware.ContentTypeJSON)
				r.Put("/profile", settingsHandler.UpdateProfile)
				r.Put("/email", settingsHandler.ChangeEmail)
				r.Put("/password", settingsHandler.ChangePassword)
			})

			// 订阅计费（无管理员旁路）
			r.Route("/billing", func(r chi.Router) {
				r.Use(customMiddleware.ContentTypeJSON)
				r.Post("/checkout", billingHandler.Checkout)
				r.Get("/subscription", billingHandler.GetSubscription)
				r.Post("/subscription/cancel", billingHandler.CancelSubscription)
			})

			// 管理员路由
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireAdmin)

				r.Route("/admin", func(r chi.Router) {
					r.Use(customMiddleware.ContentTypeJSON)
					r.Get("/users", usersHandler.ListUsers)
					r.Post("/users", usersHandler.InviteUser)
					r.Get("/users/{userId}", usersHandler.GetUser)
					r.Put("/users/{userId}", usersHandler.UpdateUser)

					r.Get("/logs", logsHandler.ListLogs)
					r.Get("/reports/file-activity", logsHandler.FileActivityReport)
					r.Get("/reports/shares", logsHandler.FileShareReport)

					r.Route("/groups", func(r chi.Router) {
						r.Get("/", groupsHandler.ListGroups)
						r.Post("/", groupsHandler.CreateGroup)
						r.Delete("/{groupId}", groupsHandler.DeleteGroup)
						r.Get("/{groupId}/members", groupsHandler.ListMembers)
						r.Post("/{groupId}/members", groupsHandler.AddMember)
						r.Delete("/{groupId}/members/{userId}", groupsHandler.RemoveMember)
					})
				})

				// 回收站仅管理员可见
				r.Route("/trash", func(r chi.Router) {
					r.Get("/", trashHandler.ListTrash)
					r.Post("/{itemId}/restore", trashHandler.RestoreItem)
					r.Delete("/{itemId}", trashHandler.PurgeItem)
				})
			})
		})

		// Webhook路由（不需要认证，但需要验证签名）
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(customMiddleware.ContentTypeJSON)
			r.Post("/payment", webhookHandler.HandlePaymentWebhook)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
