package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/motofy/rental-backend/internal/config"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func signPayload(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()

	t.Run("valid signature", func(t *testing.T) {
		header := signPayload(secret, payload, now)
		assert.NoError(t, verifySignature(payload, header, secret, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signPayload("whsec_other", payload, now)
		assert.Error(t, verifySignature(payload, header, secret, now))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signPayload(secret, payload, now)
		tampered := []byte(`{"id":"evt_1","type":"checkout.session.expired"}`)
		assert.Error(t, verifySignature(tampered, header, secret, now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := signPayload(secret, payload, now.Add(-10*time.Minute))
		assert.Error(t, verifySignature(payload, header, secret, now))
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Error(t, verifySignature(payload, "", secret, now))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.Error(t, verifySignature(payload, "v1=deadbeef", secret, now))
		assert.Error(t, verifySignature(payload, "t=notanumber,v1=deadbeef", secret, now))
	})

	t.Run("valid among multiple v1 entries", func(t *testing.T) {
		header := signPayload(secret, payload, now) + ",v1=deadbeef"
		assert.NoError(t, verifySignature(payload, header, secret, now))
	})
}

func TestRetrieveSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "cs_test_123",
			"status": "complete",
			"payment_status": "paid",
			"amount_total": 15000,
			"currency": "usd",
			"metadata": {"booking_intent": "{\"total_amount\":150}"}
		}`)
	}))
	defer server.Close()

	svc := NewStripeService(&config.PaymentConfig{
		SecretKey:  "sk_test",
		APIBaseURL: server.URL,
	}, testLogger())

	session, err := svc.RetrieveSession(context.Background(), "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", session.ID)
	assert.True(t, session.IsPaid())
	assert.Equal(t, int64(15000), session.AmountTotal)

	intent, err := session.BookingIntent()
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, 150.0, intent.TotalAmount)
}

func TestRetrieveSessionGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"message": "boom"}}`)
	}))
	defer server.Close()

	svc := NewStripeService(&config.PaymentConfig{
		SecretKey:  "sk_test",
		APIBaseURL: server.URL,
	}, testLogger())

	_, err := svc.RetrieveSession(context.Background(), "cs_test_err")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "cs_new", "url": "https://checkout.example/cs_new", "status": "open", "payment_status": "unpaid"}`)
	}))
	defer server.Close()

	svc := NewStripeService(&config.PaymentConfig{
		SecretKey:  "sk_test",
		Currency:   "usd",
		SuccessURL: "https://app.example/success",
		CancelURL:  "https://app.example/cancel",
		APIBaseURL: server.URL,
	}, testLogger())

	intent := &models.BookingIntent{
		UserID:      uuid.New(),
		VehicleID:   uuid.New(),
		PickupAt:    time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		DropoffAt:   time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
		TotalAmount: 149.99,
	}

	session, err := svc.CreateCheckoutSession(context.Background(), intent, "Honda CB500X")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.ID)
	assert.Equal(t, "https://checkout.example/cs_new", session.URL)

	assert.Equal(t, "payment", gotForm["mode"][0])
	assert.Equal(t, "14999", gotForm["line_items[0][price_data][unit_amount]"][0])
	assert.Equal(t, "Honda CB500X", gotForm["line_items[0][price_data][product_data][name]"][0])
	assert.Contains(t, gotForm["metadata[booking_intent]"][0], intent.VehicleID.String())
}

func TestSessionBookingIntent(t *testing.T) {
	t.Run("no metadata returns nil", func(t *testing.T) {
		session := &CheckoutSession{ID: "cs_1", Metadata: map[string]string{}}
		intent, err := session.BookingIntent()
		require.NoError(t, err)
		assert.Nil(t, intent)
	})

	t.Run("corrupt metadata returns error", func(t *testing.T) {
		session := &CheckoutSession{ID: "cs_1", Metadata: map[string]string{"booking_intent": "{not json"}}
		_, err := session.BookingIntent()
		assert.Error(t, err)
	})
}
