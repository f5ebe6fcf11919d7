package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/motofy/rental-backend/internal/config"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// CheckoutSession is the subset of the provider's session object the
// backend acts on. payment_status is the field reconciliation trusts;
// everything else is carried for auditing.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// IsPaid reports whether the provider considers the session settled.
func (s *CheckoutSession) IsPaid() bool {
	return s.PaymentStatus == "paid"
}

// BookingIntent decodes the booking intent stashed in the session metadata
// at checkout creation time. Returns nil when the session carries none.
func (s *CheckoutSession) BookingIntent() (*models.BookingIntent, error) {
	raw, ok := s.Metadata["booking_intent"]
	if !ok || raw == "" {
		return nil, nil
	}
	var intent models.BookingIntent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, fmt.Errorf("failed to decode booking intent metadata: %w", err)
	}
	return &intent, nil
}

// PaymentProvider is the reconciler's view of the payment gateway.
type PaymentProvider interface {
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// StripeService talks to the Stripe Checkout API over plain HTTP.
type StripeService struct {
	config     *config.PaymentConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewStripeService creates a new StripeService
func NewStripeService(cfg *config.PaymentConfig, logger *logrus.Logger) *StripeService {
	return &StripeService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// CreateCheckoutSession opens a hosted checkout page for the given intent.
// The full intent rides along in session metadata so the webhook can
// reconstruct the booking without trusting any later caller.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, intent *models.BookingIntent, productName string) (*CheckoutSession, error) {
	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode booking intent: %w", err)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", s.config.SuccessURL+"?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", s.config.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", s.config.Currency)
	form.Set("line_items[0][price_data][product_data][name]", productName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toMinorUnits(intent.TotalAmount), 10))
	form.Set("metadata[booking_intent]", string(intentJSON))
	form.Set("client_reference_id", intent.UserID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	session := &CheckoutSession{}
	if err := s.do(req, session); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"vehicle_id": intent.VehicleID,
		"user_id":    intent.UserID,
		"amount":     intent.TotalAmount,
	}).Info("Checkout session created")

	return session, nil
}

// RetrieveSession fetches the current state of a checkout session from the
// provider. This is the authoritative read used by reconciliation.
func (s *StripeService) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieve request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.SecretKey)

	session := &CheckoutSession{}
	if err := s.do(req, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *StripeService) do(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"url":    req.URL.Path,
		}).Error("Payment gateway returned non-success status")
		return fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// webhookTolerance bounds how old a signed webhook timestamp may be.
const webhookTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the Stripe-Signature header against the raw
// request body. The header format is "t=<unix>,v1=<hex hmac>[,v1=...]"; the
// signed payload is "<t>.<body>" under HMAC-SHA256 with the endpoint secret.
func (s *StripeService) VerifyWebhookSignature(payload []byte, header string) error {
	return verifySignature(payload, header, s.config.WebhookSecret, time.Now())
}

func verifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid signature timestamp")
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > webhookTolerance || age < -webhookTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

// WebhookEvent is the envelope of a provider webhook delivery.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhookEvent verifies the signature and decodes the event envelope.
func (s *StripeService) ParseWebhookEvent(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	if err := s.VerifyWebhookSignature(payload, signatureHeader); err != nil {
		return nil, err
	}
	event := &WebhookEvent{}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook event: %w", err)
	}
	return event, nil
}

// SessionFromEvent decodes the checkout session carried in a webhook event.
func SessionFromEvent(event *WebhookEvent) (*CheckoutSession, error) {
	session := &CheckoutSession{}
	if err := json.Unmarshal(event.Data.Object, session); err != nil {
		return nil, fmt.Errorf("failed to decode session from event: %w", err)
	}
	return session, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
