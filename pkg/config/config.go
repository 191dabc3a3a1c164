package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB  bool
	PostgresDSN string

	// JWT配置
	JWTSecret string

	// 文件存储配置
	StorageDir   string
	MaxUploadMB  int64
	StorageQuota int64 // 总配额（字节），0表示不限制

	// 访问审批配置
	AccessPollInterval time.Duration // 客户端轮询间隔
	OTPTTL             time.Duration // 登录验证码有效期

	// 支付回调配置
	PaymentWebhookSecret string

	// CORS配置
	AllowedOrigins []string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置（环境变量优先，其次 .env 文件）
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	// godotenv 不覆盖已有环境变量
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	config := &Config{
		// 默认值
		Environment:        getEnvWithDefault("ENVIRONMENT", "development"),
		Port:               getEnvWithDefault("PORT", "3000"),
		UseLocalDB:         getEnvBool("USE_LOCAL_DB", true),
		JWTSecret:          getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		StorageDir:         getEnvWithDefault("STORAGE_DIR", "./data/files"),
		MaxUploadMB:        getEnvInt64("MAX_UPLOAD_MB", 50),
		StorageQuota:       getEnvInt64("STORAGE_QUOTA_BYTES", 0),
		AccessPollInterval: getEnvDuration("ACCESS_POLL_INTERVAL", 10*time.Second),
		OTPTTL:             getEnvDuration("OTP_TTL", 10*time.Minute),
		Debug:              getEnvBool("DEBUG", false),
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))

	// 支付配置
	config.PaymentWebhookSecret = os.Getenv("PAYMENT_WEBHOOK_SECRET")

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	// 环境特定配置
	if config.Environment == "production" {
		// 生产环境强制使用PostgreSQL
		if config.PostgresDSN != "" {
			config.UseLocalDB = false
		} else {
			fmt.Println("⚠️  WARNING: Production environment using local database. Please configure POSTGRES_DSN")
		}
		// 生产环境关闭调试
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// Initializes once and reuses it across requests, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	// 验证端口
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// 验证JWT密钥
	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Environment == "development" {
			fmt.Println("⚠️  Using default JWT secret (not recommended for production)")
		}
	}

	// 验证数据库配置
	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或设置 USE_LOCAL_DB=true")
	}

	// 轮询间隔不允许为0，避免客户端忙等
	if c.AccessPollInterval <= 0 {
		return fmt.Errorf("ACCESS_POLL_INTERVAL must be positive")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64 获取整数类型的环境变量
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration 获取时间类型的环境变量（如 "10s"、"5m"）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
