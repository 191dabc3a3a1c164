package models

import "time"

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusPending  SubscriptionStatus = "pending"
)

// Plan represents a purchasable data room plan.
// All plans carry the same feature set; only the duration differs.
type Plan struct {
	ID             string   `json:"id" db:"id"`
	Name           string   `json:"name" db:"name"`
	DurationMonths int      `json:"duration_months" db:"duration_months"`
	PriceCents     int      `json:"price_cents" db:"price_cents"`
	PerMonthCents  int      `json:"per_month_cents" db:"per_month_cents"`
	Currency       string   `json:"currency" db:"currency"`
	Savings        string   `json:"savings,omitempty" db:"savings"`
	Popular        bool     `json:"popular" db:"popular"`
	Features       []string `json:"features" db:"features"`
	IsActive       bool     `json:"is_active" db:"is_active"`
}

// CouponType 优惠券类型：按百分比或固定金额
type CouponType string

const (
	CouponPercent CouponType = "percent"
	CouponFixed   CouponType = "fixed"
)

// Coupon represents a checkout discount code
type Coupon struct {
	Code     string     `json:"code" db:"code"`
	Type     CouponType `json:"type" db:"type"`
	Discount int        `json:"discount" db:"discount"` // percent points or whole currency units
	IsActive bool       `json:"is_active" db:"is_active"`
}

// CheckoutTotals is the server-computed price breakdown for a checkout
type CheckoutTotals struct {
	SubtotalCents int `json:"subtotal_cents"`
	DiscountCents int `json:"discount_cents"`
	TotalCents    int `json:"total_cents"`
}

// Subscription represents an organization's purchased plan
type Subscription struct {
	ID                 string             `json:"id" db:"id"`
	UserID             string             `json:"user_id" db:"user_id"`
	PlanID             string             `json:"plan_id" db:"plan_id"`
	Status             SubscriptionStatus `json:"status" db:"status"`
	CouponCode         *string            `json:"coupon_code,omitempty" db:"coupon_code"`
	TotalCents         int                `json:"total_cents" db:"total_cents"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CanceledAt         *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`

	// 关联数据
	Plan *Plan `json:"plan,omitempty"`
}
