package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-app/internal/models"
)

type recordingOrderReconciler struct {
	succeeded []string
	failed    []string
	err       error
}

func (r *recordingOrderReconciler) HandlePaymentSucceeded(_ context.Context, orderID, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.succeeded = append(r.succeeded, orderID)
	return nil
}

func (r *recordingOrderReconciler) HandlePaymentFailed(_ context.Context, orderID, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.failed = append(r.failed, orderID)
	return nil
}

type recordingPlanReconciler struct {
	activated []string
	renewed   []string
}

func (r *recordingPlanReconciler) ActivatePlan(_ context.Context, providerID string, _ models.PlanName, _ models.PlanType, _ PaymentRef) (*models.ProviderPlan, error) {
	r.activated = append(r.activated, providerID)
	return &models.ProviderPlan{ProviderID: providerID}, nil
}

func (r *recordingPlanReconciler) RenewPlan(_ context.Context, providerID string, _ models.PlanName, _ models.PlanType) (*models.ProviderPlan, error) {
	r.renewed = append(r.renewed, providerID)
	return &models.ProviderPlan{ProviderID: providerID}, nil
}

func orderEvent(eventType string) models.WebhookEvent {
	return models.WebhookEvent{
		ID:   "evt_1",
		Type: eventType,
		Metadata: map[string]string{
			"type":        models.MetaTypeOrderPayment,
			"order_id":    "64f000000000000000000001",
			"customer_id": "customer-1",
		},
	}
}

func planEvent(eventType string) models.WebhookEvent {
	return models.WebhookEvent{
		ID:   "evt_2",
		Type: eventType,
		Metadata: map[string]string{
			"type":        models.MetaTypePlanPayment,
			"provider_id": "provider-1",
			"plan_name":   "basic",
			"plan_type":   "monthly",
		},
	}
}

func TestProcess_RoutesOrderEvents(t *testing.T) {
	orders := &recordingOrderReconciler{}
	d := NewWebhookDispatcher(orders, &recordingPlanReconciler{}, nil)

	for _, eventType := range []string{models.EventCheckoutCompleted, models.EventPaymentSucceeded} {
		if err := d.Process(context.Background(), orderEvent(eventType)); err != nil {
			t.Fatalf("%s: %v", eventType, err)
		}
	}
	if len(orders.succeeded) != 2 {
		t.Errorf("succeeded calls = %d, want 2", len(orders.succeeded))
	}

	if err := d.Process(context.Background(), orderEvent(models.EventPaymentFailed)); err != nil {
		t.Fatalf("payment_failed: %v", err)
	}
	if len(orders.failed) != 1 {
		t.Errorf("failed calls = %d, want 1", len(orders.failed))
	}
}

func TestProcess_RoutesPlanEvents(t *testing.T) {
	plans := &recordingPlanReconciler{}
	d := NewWebhookDispatcher(&recordingOrderReconciler{}, plans, nil)

	if err := d.Process(context.Background(), planEvent(models.EventCheckoutCompleted)); err != nil {
		t.Fatalf("checkout completed: %v", err)
	}
	if len(plans.activated) != 1 || plans.activated[0] != "provider-1" {
		t.Errorf("activations = %v, want [provider-1]", plans.activated)
	}

	if err := d.Process(context.Background(), planEvent(models.EventInvoicePaid)); err != nil {
		t.Fatalf("invoice paid: %v", err)
	}
	if len(plans.renewed) != 1 {
		t.Errorf("renewals = %v, want one", plans.renewed)
	}
}

func TestProcess_DropsUnroutableEvents(t *testing.T) {
	orders := &recordingOrderReconciler{}
	plans := &recordingPlanReconciler{}
	d := NewWebhookDispatcher(orders, plans, nil)

	cases := []models.WebhookEvent{
		{ID: "no-meta", Type: models.EventPaymentSucceeded},
		{ID: "unknown-meta-type", Type: models.EventPaymentSucceeded,
			Metadata: map[string]string{"type": "refund"}},
		{ID: "missing-order-id", Type: models.EventPaymentSucceeded,
			Metadata: map[string]string{"type": models.MetaTypeOrderPayment, "customer_id": "customer-1"}},
		{ID: "missing-provider-id", Type: models.EventInvoicePaid,
			Metadata: map[string]string{"type": models.MetaTypePlanPayment}},
		orderEvent("charge.updated"),
		planEvent("customer.subscription.trial_will_end"),
	}
	for _, event := range cases {
		if err := d.Process(context.Background(), event); err != nil {
			t.Errorf("event %s must be dropped without error, got %v", event.ID, err)
		}
	}
	if len(orders.succeeded)+len(orders.failed)+len(plans.activated)+len(plans.renewed) != 0 {
		t.Error("dropped events must not reach the reconcilers")
	}
}

func TestEnqueue_DeadLettersWhenFull(t *testing.T) {
	d := NewWebhookDispatcher(&recordingOrderReconciler{}, &recordingPlanReconciler{}, nil)

	// worker not started: fill the queue, the next enqueue must not block
	for i := 0; i < webhookQueueSize; i++ {
		d.Enqueue(orderEvent(models.EventPaymentSucceeded))
	}

	done := make(chan struct{})
	go func() {
		d.Enqueue(orderEvent(models.EventPaymentSucceeded))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

type countingOrderReconciler struct {
	calls int
	err   error
}

func (r *countingOrderReconciler) HandlePaymentSucceeded(context.Context, string, string) error {
	r.calls++
	return r.err
}

func (r *countingOrderReconciler) HandlePaymentFailed(context.Context, string, string) error {
	r.calls++
	return r.err
}

func TestHandle_RetriesWithBoundedAttempts(t *testing.T) {
	orders := &countingOrderReconciler{err: errors.New("mongo unavailable")}
	d := NewWebhookDispatcher(orders, &recordingPlanReconciler{}, nil)
	d.SetBackoff(time.Millisecond)

	d.handle(context.Background(), orderEvent(models.EventPaymentSucceeded))

	if orders.calls != webhookMaxAttempts {
		t.Errorf("attempts = %d, want %d", orders.calls, webhookMaxAttempts)
	}
}

func TestHandle_StopsAfterFirstSuccess(t *testing.T) {
	orders := &countingOrderReconciler{}
	d := NewWebhookDispatcher(orders, &recordingPlanReconciler{}, nil)
	d.SetBackoff(time.Millisecond)

	d.handle(context.Background(), orderEvent(models.EventPaymentSucceeded))

	if orders.calls != 1 {
		t.Errorf("attempts = %d, want 1", orders.calls)
	}
}

type signallingOrderReconciler struct {
	processed chan string
}

func (r *signallingOrderReconciler) HandlePaymentSucceeded(_ context.Context, orderID, _ string) error {
	r.processed <- orderID
	return nil
}

func (r *signallingOrderReconciler) HandlePaymentFailed(_ context.Context, orderID, _ string) error {
	r.processed <- orderID
	return nil
}

func TestStart_ConsumesQueue(t *testing.T) {
	orders := &signallingOrderReconciler{processed: make(chan string, 1)}
	d := NewWebhookDispatcher(orders, &recordingPlanReconciler{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Enqueue(orderEvent(models.EventPaymentSucceeded))

	select {
	case orderID := <-orders.processed:
		if orderID != "64f000000000000000000001" {
			t.Errorf("processed order %s", orderID)
		}
	case <-time.After(time.Second):
		t.Fatal("event was never processed")
	}
}
