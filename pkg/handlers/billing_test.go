package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/models"
)

func TestApplyCouponArithmetic(t *testing.T) {
	cases := []struct {
		name     string
		coupon   models.Coupon
		subtotal int
		want     int
	}{
		{"percent 20 off", models.Coupon{Type: models.CouponPercent, Discount: 20}, 9900, 1980},
		{"percent 15 off", models.Coupon{Type: models.CouponPercent, Discount: 15}, 24900, 3735},
		{"fixed 50 dollars", models.Coupon{Type: models.CouponFixed, Discount: 50}, 9900, 5000},
		{"fixed clamped at subtotal", models.Coupon{Type: models.CouponFixed, Discount: 50}, 3000, 3000},
		{"percent of zero", models.Coupon{Type: models.CouponPercent, Discount: 20}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, applyCoupon(&tc.coupon, tc.subtotal))
		})
	}
}

func TestListPlansSeeded(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewBillingHandler(testConfig(), db)

	rec := httptest.NewRecorder()
	h.ListPlans(rec, httptest.NewRequest(http.MethodGet, "/api/billing/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Plans []models.Plan `json:"plans"`
	}
	decodeData(t, rec, &out)
	require.Len(t, out.Plans, 3)

	// 计划按时长排序，第二档标记为最受欢迎
	assert.Equal(t, 1, out.Plans[0].DurationMonths)
	assert.Equal(t, 3, out.Plans[1].DurationMonths)
	assert.Equal(t, 12, out.Plans[2].DurationMonths)
	assert.True(t, out.Plans[1].Popular)
}

func TestValidateCouponWithTotals(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewBillingHandler(testConfig(), db)

	plans, err := db.ListPlans()
	require.NoError(t, err)
	monthly := plans[0]

	req := httptest.NewRequest(http.MethodPost, "/api/billing/validate-coupon",
		jsonBody(t, map[string]string{"code": "welcome20", "plan_id": monthly.ID}))
	rec := httptest.NewRecorder()
	h.ValidateCoupon(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Valid  bool                  `json:"valid"`
		Totals models.CheckoutTotals `json:"totals"`
	}
	decodeData(t, rec, &out)
	assert.True(t, out.Valid)
	assert.Equal(t, monthly.PriceCents, out.Totals.SubtotalCents)
	assert.Equal(t, monthly.PriceCents/5, out.Totals.DiscountCents)
	assert.Equal(t, monthly.PriceCents-monthly.PriceCents/5, out.Totals.TotalCents)
}

func TestValidateCouponUnknownCode(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewBillingHandler(testConfig(), db)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/validate-coupon",
		jsonBody(t, map[string]string{"code": "NOPE"}))
	rec := httptest.NewRecorder()
	h.ValidateCoupon(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutCreatesPendingSubscription(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewBillingHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)

	plans, err := db.ListPlans()
	require.NoError(t, err)
	yearly := plans[2]

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		jsonBody(t, map[string]string{"plan_id": yearly.ID, "coupon_code": "SAVE50"})), user)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Subscription models.Subscription   `json:"subscription"`
		Totals       models.CheckoutTotals `json:"totals"`
	}
	decodeData(t, rec, &out)

	assert.Equal(t, models.StatusPending, out.Subscription.Status)
	assert.Equal(t, yearly.PriceCents, out.Totals.SubtotalCents)
	assert.Equal(t, 5000, out.Totals.DiscountCents)
	assert.Equal(t, yearly.PriceCents-5000, out.Totals.TotalCents)

	// 订阅落库且金额一致
	sub, err := db.GetUserSubscription(user.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Subscription.ID, sub.ID)
	assert.Equal(t, out.Totals.TotalCents, sub.TotalCents)
}

// 管理员走同样的计费流程，没有旁路
func TestCheckoutNoAdminBypass(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewBillingHandler(testConfig(), db)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)

	plans, err := db.ListPlans()
	require.NoError(t, err)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		jsonBody(t, map[string]string{"plan_id": plans[0].ID})), admin)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		Totals models.CheckoutTotals `json:"totals"`
	}
	decodeData(t, rec, &out)
	assert.Equal(t, plans[0].PriceCents, out.Totals.TotalCents)
}

func TestCancelSubscriptionKeepsPaidPeriod(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewBillingHandler(testConfig(), db)
	user := seedUser(t, db, "user@example.com", models.RoleUser)

	plans, err := db.ListPlans()
	require.NoError(t, err)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/billing/checkout",
		jsonBody(t, map[string]string{"plan_id": plans[0].ID})), user)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = asUser(httptest.NewRequest(http.MethodPost, "/api/billing/subscription/cancel", nil), user)
	rec = httptest.NewRecorder()
	h.CancelSubscription(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := db.GetUserSubscription(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)
	assert.NotNil(t, sub.CurrentPeriodEnd)
}
