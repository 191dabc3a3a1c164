package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/config"
	"dataroom-backend/pkg/database"
	"dataroom-backend/pkg/models"
)

const testWebhookSecret = "whsec_test"

func webhookConfig() *config.Config {
	cfg := testConfig()
	cfg.PaymentWebhookSecret = testWebhookSecret
	return cfg
}

func signPayload(secret string, body []byte) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	return fmt.Sprintf("ts=%s;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func seedPendingSubscription(t *testing.T, db database.DatabaseInterface) *models.Subscription {
	t.Helper()
	user := seedUser(t, db, "payer@example.com", models.RoleUser)
	sub := &models.Subscription{
		UserID:     user.ID,
		PlanID:     "monthly",
		Status:     models.StatusPending,
		TotalCents: 9900,
	}
	require.NoError(t, db.CreateSubscription(sub))
	return sub
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Payment-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.HandlePaymentWebhook(rec, req)
	return rec
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	h := NewWebhookHandler(webhookConfig(), database.NewLocalDatabase())
	rec := postWebhook(h, []byte(`{}`), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	h := NewWebhookHandler(webhookConfig(), database.NewLocalDatabase())
	signature := signPayload(testWebhookSecret, []byte(`{"event_type":"payment.completed"}`))
	rec := postWebhook(h, []byte(`{"event_type":"subscription.canceled"}`), signature)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// 未配置密钥时拒绝所有回调，而不是放行
func TestWebhookRejectsWhenSecretUnset(t *testing.T) {
	h := NewWebhookHandler(testConfig(), database.NewLocalDatabase())
	body := []byte(`{"event_type":"payment.completed"}`)
	rec := postWebhook(h, body, signPayload("", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookPaymentCompletedActivatesSubscription(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewWebhookHandler(webhookConfig(), db)
	sub := seedPendingSubscription(t, db)

	body := []byte(fmt.Sprintf(
		`{"event_id":"evt_1","event_type":"payment.completed","data":{"subscription_id":"%s","amount_cents":9900}}`,
		sub.ID))
	rec := postWebhook(h, body, signPayload(testWebhookSecret, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := db.GetSubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)
}

func TestWebhookPaymentFailedMarksPastDue(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewWebhookHandler(webhookConfig(), db)
	sub := seedPendingSubscription(t, db)

	body := []byte(fmt.Sprintf(
		`{"event_id":"evt_2","event_type":"payment.failed","data":{"subscription_id":"%s"}}`, sub.ID))
	rec := postWebhook(h, body, signPayload(testWebhookSecret, body))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := db.GetSubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPastDue, updated.Status)
}

func TestWebhookSubscriptionCanceledSetsCanceledAt(t *testing.T) {
	db := database.NewLocalDatabase()
	h := NewWebhookHandler(webhookConfig(), db)
	sub := seedPendingSubscription(t, db)

	body := []byte(fmt.Sprintf(
		`{"event_id":"evt_3","event_type":"subscription.canceled","data":{"subscription_id":"%s"}}`, sub.ID))
	rec := postWebhook(h, body, signPayload(testWebhookSecret, body))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := db.GetSubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, updated.Status)
	assert.NotNil(t, updated.CanceledAt)
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	h := NewWebhookHandler(webhookConfig(), database.NewLocalDatabase())
	body := []byte(`{"event_id":"evt_4","event_type":"payout.created"}`)
	rec := postWebhook(h, body, signPayload(testWebhookSecret, body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
}
