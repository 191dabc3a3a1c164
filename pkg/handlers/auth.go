package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config     *config.Config
	db         database.DatabaseInterface
	jwtService *utils.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		db:         db,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
	}
}

// Register 用户注册
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		utils.WriteBadRequestResponse(w, "A valid email is required")
		return
	}
	if len(req.Password) < 8 {
		utils.WriteBadRequestResponse(w, "Password must be at least 8 characters")
		return
	}

	if _, err := h.db.GetUserByEmail(req.Email); err == nil {
		utils.WriteConflictResponse(w, "An account with this email already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create account")
		return
	}

	user := &models.User{
		Email:    req.Email,
		Password: string(hash),
		Name:     req.Name,
		Role:     models.RoleUser,
		Status:   "active",
	}
	if err := h.db.CreateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create account")
		return
	}

	logActivity(h.db, user, "auth.register", "", "", "", user.Email)

	utils.WriteCreatedResponse(w, user)
}

// Login 密码登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	user, err := h.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		// 不区分"用户不存在"和"密码错误"
		utils.WriteUnauthorizedResponse(w, "Invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid email or password")
		return
	}

	h.issueSession(w, user)
}

// RequestOTP 请求登录验证码
//
// 无论邮箱是否存在都返回成功，避免探测注册用户。
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req models.OTPRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		utils.WriteBadRequestResponse(w, "Email is required")
		return
	}

	if _, err := h.db.GetUserByEmail(email); err == nil {
		code, err := utils.GenerateOTP()
		if err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to generate verification code")
			return
		}
		if err := h.db.SaveOTP(email, code, time.Now().Add(h.config.OTPTTL)); err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to save verification code")
			return
		}
		// TODO: deliver via the mail provider once SMTP credentials land; until then the
		// code is printed for local development
		if h.config.Debug {
			fmt.Printf("📧 OTP for %s: %s\n", email, code)
		}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "If the email is registered, a verification code has been sent",
	})
}

// VerifyOTP 校验验证码并签发令牌
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req models.OTPVerifyRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.db.GetUserByEmail(email)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid verification code")
		return
	}
	if err := h.db.ConsumeOTP(email, req.Code); err != nil {
		utils.WriteUnauthorizedResponse(w, err.Error())
		return
	}

	h.issueSession(w, user)
}

// ForgotPassword 发起密码重置
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.OTPRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if user, err := h.db.GetUserByEmail(email); err == nil {
		token, err := utils.GenerateURLToken(32)
		if err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to generate reset token")
			return
		}
		if err := h.db.SaveResetToken(user.ID, token, time.Now().Add(time.Hour)); err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to save reset token")
			return
		}
		if h.config.Debug {
			fmt.Printf("📧 Password reset token for %s: %s\n", email, token)
		}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "If the email is registered, a reset link has been sent",
	})
}

// ResetPassword 用重置令牌设置新密码
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		utils.WriteBadRequestResponse(w, "Password must be at least 8 characters")
		return
	}

	userID, err := h.db.ConsumeResetToken(req.Token)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, err.Error())
		return
	}
	user, err := h.db.GetUserByID(userID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to reset password")
		return
	}
	user.Password = string(hash)
	if err := h.db.UpdateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to reset password")
		return
	}

	logActivity(h.db, user, "auth.password_reset", "", "", "", "")

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Password has been reset",
	})
}

// RefreshToken 刷新令牌
//
// 刷新时重新读库：停用的账号拿不到新令牌，角色变更也在这里生效。
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token")
		return
	}
	user, err := h.db.GetUserByID(claims.UserID)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token")
		return
	}
	if user.Status == "suspended" {
		utils.WriteForbiddenResponse(w, "Account is suspended")
		return
	}

	accessToken, expiresIn, err := h.jwtService.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

// Logout 用户登出
//
// 令牌是无状态的，服务端只记录动作，由客户端丢弃令牌。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user, err := middleware.RequireUser(r.Context()); err == nil {
		logActivity(h.db, user, "auth.logout", "", "", "", "")
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Logged out",
	})
}

// Me 返回当前用户
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
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
	utils.WriteSuccessResponse(w, user)
}

// issueSession 签发令牌对并写入登录响应
//
// 停用的账号在这里被拒绝，密码和验证码两条登录路径共用这个检查。
func (h *AuthHandler) issueSession(w http.ResponseWriter, user *models.User) {
	if user.Status == "suspended" {
		utils.WriteForbiddenResponse(w, "Account is suspended")
		return
	}

	accessToken, refreshToken, expiresIn, err := h.jwtService.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}

	now := time.Now()
	user.LastLogin = &now
	if err := h.db.UpdateUser(user); err != nil {
		fmt.Printf("⚠️ Failed to record last login for %s: %v\n", user.Email, err)
	}

	logActivity(h.db, user, "auth.login", "", "", "", "")

	utils.WriteSuccessResponse(w, models.UserLoginResponse{
		User:         *user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		Role:         string(user.Role),
	})
}
