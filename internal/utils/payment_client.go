package utils

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketplace-app/internal/config"
	"marketplace-app/internal/models"
)

type CheckoutSessionParams struct {
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PaymentIntent struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type GatewaySubscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// GatewayClient is the narrow surface of the payment provider the core consumes:
// checkout sessions, object retrieval and webhook event verification.
type GatewayClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

func NewGatewayClient(cfg config.GatewayConfig) *GatewayClient {
	return &GatewayClient{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *GatewayClient) configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

func (c *GatewayClient) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if !c.configured() {
		return nil, fmt.Errorf("%w: gateway is not configured", models.ErrGateway)
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: gateway returned %d: %s", models.ErrGateway, resp.StatusCode, string(body))
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", models.ErrGateway, err)
	}
	return &session, nil
}

func (c *GatewayClient) RetrieveSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.get(ctx, "/v1/checkout/sessions/"+id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *GatewayClient) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.get(ctx, "/v1/payment_intents/"+id, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *GatewayClient) RetrieveSubscription(ctx context.Context, id string) (*GatewaySubscription, error) {
	var sub GatewaySubscription
	if err := c.get(ctx, "/v1/subscriptions/"+id, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *GatewayClient) get(ctx context.Context, path string, out interface{}) error {
	if !c.configured() {
		return fmt.Errorf("%w: gateway is not configured", models.ErrGateway)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: gateway returned %d", models.ErrGateway, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SignWebhookPayload computes the signature the gateway puts into the signature
// header: hex HMAC-SHA256 over the exact body bytes.
func SignWebhookPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstructWebhookEvent verifies the signature over the raw body and parses the
// event. The signature is the sole integrity gate on the webhook path.
func (c *GatewayClient) ConstructWebhookEvent(payload []byte, signatureHeader string) (*models.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", models.ErrGateway)
	}

	expected, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return nil, models.ErrSignature
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return nil, models.ErrSignature
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("malformed webhook payload: missing event type")
	}
	return &event, nil
}
