package database

import (
	"fmt"
	"time"

	"dataroom-backend/pkg/models"
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 用户管理
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUser(user *models.User) error
	ListUsers() ([]models.User, error)

	// 登录验证码与密码重置令牌
	SaveOTP(email, code string, expiresAt time.Time) error
	ConsumeOTP(email, code string) error
	SaveResetToken(userID, token string, expiresAt time.Time) error
	ConsumeResetToken(token string) (string, error) // returns user id

	// 文件夹
	CreateFolder(folder *models.Folder) error
	GetFolder(id string) (*models.Folder, error)
	ListFolders() ([]models.Folder, error)
	UpdateFolder(folder *models.Folder) error
	SoftDeleteFolder(id, deletedBy string) error

	// 文件
	CreateFile(file *models.File) error
	GetFile(id string) (*models.File, error)
	ListFilesByFolder(folderID string) ([]models.File, error)
	UpdateFile(file *models.File) error
	SoftDeleteFile(id, deletedBy string) error

	// 收藏（集合语义：重复添加幂等）
	AddFavorite(fav *models.Favorite) error
	RemoveFavorite(userID, itemID string, itemType models.ItemType) error
	ListFavorites(userID string) ([]models.Favorite, error)

	// 回收站
	ListTrash() ([]models.TrashItem, error)
	RestoreItem(itemID string) error
	PurgeItem(itemID string) error

	// 访问请求（访问请求存储的唯一归属方）
	CreateAccessRequest(req *models.AccessRequest) error
	GetAccessRequest(id string) (*models.AccessRequest, error)
	ListAccessRequests() ([]models.AccessRequest, error)
	UpdateAccessRequest(req *models.AccessRequest) error
	DeleteAccessRequest(id string) error
	// FindPendingAccessRequest 查找同一 (requester,item) 的未决请求，用于重复提交去重
	FindPendingAccessRequest(requesterID, itemID string, itemType models.ItemType) (*models.AccessRequest, error)
	// GetGrantedAccessTypes 从已批准的请求行派生 (user,item) 的当前有效能力集合
	GetGrantedAccessTypes(userID, itemID string, itemType models.ItemType) ([]models.AccessType, error)
	// ListApprovedForItem 列出持有某项目访问权的所有已批准请求
	ListApprovedForItem(itemID string, itemType models.ItemType) ([]models.AccessRequest, error)

	// 标签
	CreateTag(tag *models.Tag) error
	ListTags() ([]models.Tag, error)
	UpdateTag(tag *models.Tag) error
	DeleteTag(id string) error

	// 活动日志
	AppendActivity(entry *models.ActivityLog) error
	ListActivity(filter models.LogFilter) ([]models.ActivityLog, error)
	ListActivityByItem(itemID string) ([]models.ActivityLog, error)

	// 用户组
	CreateGroup(group *models.UserGroup) error
	ListGroups() ([]models.UserGroup, error)
	DeleteGroup(id string) error
	AddGroupMember(m *models.GroupMembership) error
	RemoveGroupMember(groupID, userID string) error
	ListGroupMembers(groupID string) ([]models.GroupMembership, error)

	// 订阅计费
	ListPlans() ([]models.Plan, error)
	GetPlan(id string) (*models.Plan, error)
	GetCoupon(code string) (*models.Coupon, error)
	CreateSubscription(sub *models.Subscription) error
	GetUserSubscription(userID string) (*models.Subscription, error)
	GetSubscriptionByID(id string) (*models.Subscription, error)
	UpdateSubscription(sub *models.Subscription) error

	// 存储用量
	GetStorageUsage() (*models.StorageUsage, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB  bool
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	if config.PostgresDSN != "" && !config.UseLocalDB {
		fmt.Printf("🗄️  Using PostgreSQL database\n")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	if config.UseLocalDB {
		fmt.Printf("🧰  Using local in-memory database\n")
		return NewLocalDatabase()
	}

	panic("No valid database configuration found. Please configure POSTGRES_DSN or set USE_LOCAL_DB=true")
}
