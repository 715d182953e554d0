package models

import "encoding/json"

// Webhook metadata discriminators; events without a recognized value are dropped.
const (
	MetaTypeOrderPayment = "order_payment"
	MetaTypePlanPayment  = "plan_payment"
)

// Gateway event types the reconciliation path understands.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventInvoicePaid       = "invoice.paid"
)

// WebhookEvent is the parsed, signature-verified gateway callback. The gateway
// guarantees nothing about ordering or single delivery; every consumer must be
// idempotent against redelivery.
type WebhookEvent struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     json.RawMessage   `json:"data,omitempty"`
}
