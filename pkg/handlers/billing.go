package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/middleware"
	"dataroom-backend/pkg/models"
	"dataroom-backend/pkg/utils"
)

// BillingHandler 订阅计费处理器
//
// 注意：计费没有管理员旁路，管理员购买计划走同样的流程。
type BillingHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewBillingHandler 创建计费处理器
func NewBillingHandler(cfg *config.Config, db database.DatabaseInterface) *BillingHandler {
	return &BillingHandler{config: cfg, db: db}
}

// ListPlans GET /api/billing/plans
func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.db.ListPlans()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list plans")
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"plans": plans,
	})
}

// applyCoupon 计算折扣金额（分）。百分比券按小计取整，
// 固定金额券以整元配置并在小计处截断，折扣永不为负。
func applyCoupon(coupon *models.Coupon, subtotalCents int) int {
	var discount int
	switch coupon.Type {
	case models.CouponPercent:
		discount = subtotalCents * coupon.Discount / 100
	case models.CouponFixed:
		discount = coupon.Discount * 100
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// ValidateCoupon POST /api/billing/validate-coupon
func (h *BillingHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		PlanID string `json:"plan_id"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		utils.WriteBadRequestResponse(w, "Coupon code is required")
		return
	}

	coupon, err := h.db.GetCoupon(strings.ToUpper(strings.TrimSpace(req.Code)))
	if err != nil {
		utils.WriteNotFoundResponse(w, "Invalid coupon code")
		return
	}

	resp := map[string]interface{}{
		"coupon": coupon,
		"valid":  true,
	}
	if req.PlanID != "" {
		plan, err := h.db.GetPlan(req.PlanID)
		if err != nil {
			utils.WriteNotFoundResponse(w, "Plan not found")
			return
		}
		discount := applyCoupon(coupon, plan.PriceCents)
		resp["totals"] = models.CheckoutTotals{
			SubtotalCents: plan.PriceCents,
			DiscountCents: discount,
			TotalCents:    plan.PriceCents - discount,
		}
	}

	utils.WriteSuccessResponse(w, resp)
}

// Checkout POST /api/billing/checkout
//
// 创建待支付订阅并返回金额明细；支付回调把订阅置为 active。
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		PlanID     string `json:"plan_id"`
		CouponCode string `json:"coupon_code"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	plan, err := h.db.GetPlan(req.PlanID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Plan not found")
		return
	}

	totals := models.CheckoutTotals{
		SubtotalCents: plan.PriceCents,
		TotalCents:    plan.PriceCents,
	}
	var couponCode *string
	if code := strings.ToUpper(strings.TrimSpace(req.CouponCode)); code != "" {
		coupon, err := h.db.GetCoupon(code)
		if err != nil {
			utils.WriteBadRequestResponse(w, "Invalid coupon code")
			return
		}
		totals.DiscountCents = applyCoupon(coupon, plan.PriceCents)
		totals.TotalCents = plan.PriceCents - totals.DiscountCents
		couponCode = &coupon.Code
	}

	now := time.Now()
	end := now.AddDate(0, plan.DurationMonths, 0)
	sub := &models.Subscription{
		UserID:             user.ID,
		PlanID:             plan.ID,
		Status:             models.StatusPending,
		CouponCode:         couponCode,
		TotalCents:         totals.TotalCents,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &end,
	}
	if err := h.db.CreateSubscription(sub); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create subscription")
		return
	}
	sub.Plan = plan

	logActivity(h.db, user, "billing.checkout", "", "", "",
		fmt.Sprintf("plan %s total %d cents", plan.ID, totals.TotalCents))

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"subscription": sub,
		"totals":       totals,
	})
}

// GetSubscription GET /api/billing/subscription
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	sub, err := h.db.GetUserSubscription(user.ID)
	if err != nil {
		utils.WriteSuccessResponse(w, map[string]interface{}{
			"subscription": nil,
			"active":       false,
		})
		return
	}

	active := sub.Status == models.StatusActive &&
		(sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.After(time.Now()))

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"subscription": sub,
		"active":       active,
	})
}

// CancelSubscription POST /api/billing/subscription/cancel
//
// 取消只停止续期，当前已付周期内订阅仍然有效。
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	sub, err := h.db.GetUserSubscription(user.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "No subscription found")
		return
	}
	if sub.Status == models.StatusCanceled {
		utils.WriteConflictResponse(w, "Subscription is already canceled")
		return
	}

	now := time.Now()
	sub.Status = models.StatusCanceled
	sub.CanceledAt = &now
	if err := h.db.UpdateSubscription(sub); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to cancel subscription")
		return
	}

	logActivity(h.db, user, "billing.cancel", "", "", "", sub.ID)

	utils.WriteSuccessResponse(w, sub)
}
