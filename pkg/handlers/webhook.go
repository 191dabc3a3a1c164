package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// WebhookHandler 处理支付网关回调
type WebhookHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewWebhookHandler 创建webhook处理器
func NewWebhookHandler(cfg *config.Config, db database.DatabaseInterface) *WebhookHandler {
	return &WebhookHandler{
		config: cfg,
		db:     db,
	}
}

// PaymentWebhookEvent 支付网关事件结构
type PaymentWebhookEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		SubscriptionID string `json:"subscription_id"`
		Status         string `json:"status"`
		AmountCents    int    `json:"amount_cents"`
	} `json:"data"`
}

// HandlePaymentWebhook 处理支付网关webhook
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	fmt.Printf("🔔 Payment webhook received: %s %s\n", r.Method, r.URL.Path)

	// 读取请求体
	body, err := io.ReadAll(r.Body)
	if err != nil {
		fmt.Printf("❌ Failed to read webhook body: %v\n", err)
		utils.WriteBadRequestResponse(w, "Failed to read request body")
		return
	}

	// 验证webhook签名
	if !h.verifySignature(r, body) {
		fmt.Printf("❌ Invalid payment webhook signature\n")
		utils.WriteUnauthorizedResponse(w, "Invalid webhook signature")
		return
	}

	// 解析webhook事件
	var event PaymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		fmt.Printf("❌ Failed to parse webhook event: %v\n", err)
		utils.WriteBadRequestResponse(w, "Invalid webhook payload")
		return
	}

	fmt.Printf("🔍 Processing payment event: %s (ID: %s)\n", event.EventType, event.EventID)

	// 处理不同类型的事件
	switch event.EventType {
	case "payment.completed":
		err = h.transitionSubscription(event, models.StatusActive)
	case "payment.failed":
		err = h.transitionSubscription(event, models.StatusPastDue)
	case "subscription.canceled":
		err = h.transitionSubscription(event, models.StatusCanceled)
	default:
		fmt.Printf("⚠️ Unhandled payment event type: %s\n", event.EventType)
		utils.WriteSuccessResponse(w, map[string]string{"status": "ignored"})
		return
	}

	if err != nil {
		fmt.Printf("❌ Failed to process webhook event: %v\n", err)
		utils.WriteInternalServerErrorResponse(w, "Failed to process webhook")
		return
	}

	fmt.Printf("✅ Successfully processed payment webhook: %s\n", event.EventType)
	utils.WriteSuccessResponse(w, map[string]string{"status": "processed"})
}

// verifySignature 验证webhook签名
//
// 签名头格式：ts=<unix>;h1=<hex(hmac-sha256(ts + ":" + body))>
func (h *WebhookHandler) verifySignature(r *http.Request, body []byte) bool {
	if h.config.PaymentWebhookSecret == "" {
		fmt.Printf("⚠️ PAYMENT_WEBHOOK_SECRET not configured, rejecting webhook\n")
		return false
	}

	signature := r.Header.Get("Payment-Signature")
	if signature == "" {
		fmt.Printf("⚠️ Missing Payment-Signature header\n")
		return false
	}

	// 解析签名
	parts := strings.Split(signature, ";")
	var ts, h1 string
	for _, part := range parts {
		if strings.HasPrefix(part, "ts=") {
			ts = strings.TrimPrefix(part, "ts=")
		} else if strings.HasPrefix(part, "h1=") {
			h1 = strings.TrimPrefix(part, "h1=")
		}
	}
	if ts == "" || h1 == "" {
		fmt.Printf("⚠️ Malformed Payment-Signature header\n")
		return false
	}

	// 重算签名并恒定时间比较
	mac := hmac.New(sha256.New, []byte(h.config.PaymentWebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(h1))
}

// transitionSubscription 根据事件推进订阅状态
func (h *WebhookHandler) transitionSubscription(event PaymentWebhookEvent, status models.SubscriptionStatus) error {
	if event.Data.SubscriptionID == "" {
		return fmt.Errorf("event %s carries no subscription_id", event.EventID)
	}

	sub, err := h.db.GetSubscriptionByID(event.Data.SubscriptionID)
	if err != nil {
		return fmt.Errorf("subscription %s not found: %w", event.Data.SubscriptionID, err)
	}

	if status == models.StatusCanceled {
		now := time.Now()
		sub.CanceledAt = &now
	}
	sub.Status = status
	if err := h.db.UpdateSubscription(sub); err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", sub.ID, err)
	}
	return nil
}
