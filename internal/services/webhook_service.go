package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace-app/internal/models"
)

const (
	webhookQueueSize      = 256
	webhookMaxAttempts    = 3
	webhookDeadLetterKey  = "webhooks:dead_letter"
	defaultWebhookBackoff = 2 * time.Second
)

// orderReconciler and planReconciler are the slices of the services the
// dispatcher drives; both sides are idempotent against event redelivery.
type orderReconciler interface {
	HandlePaymentSucceeded(ctx context.Context, orderID string, actorID string) error
	HandlePaymentFailed(ctx context.Context, orderID string, actorID string) error
}

type planReconciler interface {
	ActivatePlan(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType, pay PaymentRef) (*models.ProviderPlan, error)
	RenewPlan(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType) (*models.ProviderPlan, error)
}

// WebhookDispatcher decouples webhook acknowledgment from reconciliation: the
// HTTP handler enqueues a verified event and returns, a worker applies it with
// bounded retries and parks the losers on a Redis dead-letter list.
type WebhookDispatcher struct {
	orders  orderReconciler
	plans   planReconciler
	redis   *redis.Client
	queue   chan models.WebhookEvent
	backoff time.Duration
}

func NewWebhookDispatcher(orders orderReconciler, plans planReconciler, rdb *redis.Client) *WebhookDispatcher {
	return &WebhookDispatcher{
		orders:  orders,
		plans:   plans,
		redis:   rdb,
		queue:   make(chan models.WebhookEvent, webhookQueueSize),
		backoff: defaultWebhookBackoff,
	}
}

// Enqueue never blocks the acknowledgment path; a full queue dead-letters the
// event instead of stalling the gateway response.
func (d *WebhookDispatcher) Enqueue(event models.WebhookEvent) {
	select {
	case d.queue <- event:
	default:
		log.Printf("[WEBHOOK] queue full, dead-lettering event %s (%s)", event.ID, event.Type)
		d.deadLetter(context.Background(), event, "queue full")
	}
}

func (d *WebhookDispatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-d.queue:
				d.handle(ctx, event)
			}
		}
	}()
}

func (d *WebhookDispatcher) handle(ctx context.Context, event models.WebhookEvent) {
	var err error
	for attempt := 1; attempt <= webhookMaxAttempts; attempt++ {
		if err = d.Process(ctx, event); err == nil {
			return
		}
		log.Printf("[WEBHOOK] event %s (%s) attempt %d/%d failed: %v",
			event.ID, event.Type, attempt, webhookMaxAttempts, err)
		if attempt < webhookMaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * d.backoff):
			}
		}
	}
	d.deadLetter(ctx, event, err.Error())
}

// Process routes one verified event. Unknown metadata and unknown event types
// are dropped, not failed: the gateway sends far more than this core consumes.
func (d *WebhookDispatcher) Process(ctx context.Context, event models.WebhookEvent) error {
	meta := event.Metadata
	if meta == nil {
		log.Printf("[WEBHOOK] event %s (%s) has no metadata, dropping", event.ID, event.Type)
		return nil
	}

	switch meta["type"] {
	case models.MetaTypeOrderPayment:
		return d.processOrderPayment(ctx, event)
	case models.MetaTypePlanPayment:
		return d.processPlanPayment(ctx, event)
	default:
		log.Printf("[WEBHOOK] event %s has unrecognized metadata type %q, dropping", event.ID, meta["type"])
		return nil
	}
}

func (d *WebhookDispatcher) processOrderPayment(ctx context.Context, event models.WebhookEvent) error {
	orderID := event.Metadata["order_id"]
	customerID := event.Metadata["customer_id"]
	if orderID == "" || customerID == "" {
		log.Printf("[WEBHOOK] event %s is missing order correlation metadata, dropping", event.ID)
		return nil
	}

	switch event.Type {
	case models.EventCheckoutCompleted, models.EventPaymentSucceeded:
		return d.orders.HandlePaymentSucceeded(ctx, orderID, customerID)
	case models.EventPaymentFailed:
		return d.orders.HandlePaymentFailed(ctx, orderID, customerID)
	default:
		log.Printf("[WEBHOOK] ignoring event type %s for order %s", event.Type, orderID)
		return nil
	}
}

func (d *WebhookDispatcher) processPlanPayment(ctx context.Context, event models.WebhookEvent) error {
	providerID := event.Metadata["provider_id"]
	if providerID == "" {
		log.Printf("[WEBHOOK] event %s is missing provider correlation metadata, dropping", event.ID)
		return nil
	}
	name := models.PlanName(event.Metadata["plan_name"])
	planType := models.PlanType(event.Metadata["plan_type"])

	switch event.Type {
	case models.EventCheckoutCompleted, models.EventPaymentSucceeded:
		_, err := d.plans.ActivatePlan(ctx, providerID, name, planType, PaymentRef{CheckoutSessionID: event.ID})
		return err
	case models.EventInvoicePaid:
		_, err := d.plans.RenewPlan(ctx, providerID, name, planType)
		return err
	default:
		log.Printf("[WEBHOOK] ignoring event type %s for provider %s", event.Type, providerID)
		return nil
	}
}

func (d *WebhookDispatcher) deadLetter(ctx context.Context, event models.WebhookEvent, cause string) {
	log.Printf("[WEBHOOK] dead-lettering event %s (%s): %s", event.ID, event.Type, cause)
	if d.redis == nil {
		return
	}
	entry, err := json.Marshal(map[string]interface{}{
		"event":     event,
		"cause":     cause,
		"failed_at": time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[WEBHOOK] failed to marshal dead letter: %v", err)
		return
	}
	if err := d.redis.RPush(ctx, webhookDeadLetterKey, entry).Err(); err != nil {
		log.Printf("[WEBHOOK] failed to push dead letter: %v", err)
	}
}

// SetBackoff overrides the retry delay between attempts.
func (d *WebhookDispatcher) SetBackoff(delay time.Duration) {
	d.backoff = delay
}
