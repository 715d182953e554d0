package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"marketplace-app/internal/config"
	"marketplace-app/internal/models"
	"marketplace-app/internal/repository"
	"marketplace-app/internal/utils"
)

// PaymentRef carries gateway correlation ids onto the plan document.
type PaymentRef struct {
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	PaymentIntentID   string `json:"payment_intent_id,omitempty"`
	GatewayCustomerID string `json:"gateway_customer_id,omitempty"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
}

type PlanService interface {
	GetPlan(ctx context.Context, providerID string) (*models.ProviderPlan, error)
	CreatePlanCheckoutSession(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType) (*utils.CheckoutSession, error)
	ActivatePlan(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType, pay PaymentRef) (*models.ProviderPlan, error)
	UpgradePlan(ctx context.Context, providerID string, newName models.PlanName, newType models.PlanType) (*models.ProviderPlan, float64, error)
	RenewPlan(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType) (*models.ProviderPlan, error)
	CancelPlan(ctx context.Context, providerID string) error
	CheckPlanExpiration(ctx context.Context, providerID string) (*models.ProviderPlan, error)
	SweepExpiredPlans(ctx context.Context)
}

type planService struct {
	repo    repository.PlanRepository
	gateway PaymentGateway
	cfg     *config.Config
}

func NewPlanService(repo repository.PlanRepository, gateway PaymentGateway, cfg *config.Config) PlanService {
	return &planService{repo: repo, gateway: gateway, cfg: cfg}
}

// CreatePlanCheckoutSession mints a gateway checkout for a paid plan. The free
// tier never goes through the gateway; ActivatePlan is called directly instead.
func (s *planService) CreatePlanCheckoutSession(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType) (*utils.CheckoutSession, error) {
	entry, ok := models.PlanCatalog[name]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown plan name: %s", name))
	}
	if _, ok := planType.PeriodDays(); !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown plan type: %s", planType))
	}
	price := entry.PriceFor(planType)
	if price <= 0 {
		return nil, models.NewValidationError("free plan does not require payment")
	}

	return s.gateway.CreateCheckoutSession(ctx, utils.CheckoutSessionParams{
		Amount:     price,
		Currency:   entry.Currency,
		SuccessURL: s.cfg.Gateway.SuccessURL,
		CancelURL:  s.cfg.Gateway.CancelURL,
		Metadata: map[string]string{
			"provider_id": providerID,
			"plan_name":   string(name),
			"plan_type":   string(planType),
			"type":        models.MetaTypePlanPayment,
		},
	})
}

// GetPlan returns the current plan with DaysRemaining recomputed; the stored
// counter is never the source of truth.
func (s *planService) GetPlan(ctx context.Context, providerID string) (*models.ProviderPlan, error) {
	plan, err := s.repo.GetByProviderID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	plan.DaysRemaining = plan.DaysRemainingAt(time.Now())
	return plan, nil
}

func (s *planService) ActivatePlan(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType, pay PaymentRef) (*models.ProviderPlan, error) {
	entry, ok := models.PlanCatalog[name]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown plan name: %s", name))
	}
	period, ok := planType.PeriodDays()
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown plan type: %s", planType))
	}

	now := time.Now()
	plan := &models.ProviderPlan{
		ProviderID:        providerID,
		PlanName:          name,
		PlanType:          planType,
		Status:            models.PlanStatusActive,
		StartDate:         now,
		EndDate:           now.AddDate(0, 0, period),
		Price:             entry.PriceFor(planType),
		Currency:          entry.Currency,
		Features:          entry.Features,
		AutoRenew:         true,
		CheckoutSessionID: pay.CheckoutSessionID,
		PaymentIntentID:   pay.PaymentIntentID,
		GatewayCustomerID: pay.GatewayCustomerID,
		SubscriptionID:    pay.SubscriptionID,
	}
	plan.DaysRemaining = plan.DaysRemainingAt(now)

	if err := s.repo.SavePlanWithSummary(ctx, plan, plan.Summary(now)); err != nil {
		return nil, err
	}
	return plan, nil
}

// UpgradePlan moves a provider strictly up the plan ladder. The unused portion
// of the current period is carried over: new end = now + remaining + full new period.
func (s *planService) UpgradePlan(ctx context.Context, providerID string, newName models.PlanName, newType models.PlanType) (*models.ProviderPlan, float64, error) {
	plan, err := s.repo.GetByProviderID(ctx, providerID)
	if err != nil {
		return nil, 0, err
	}

	newRank, ok := newName.Rank()
	if !ok {
		return nil, 0, models.NewValidationError(fmt.Sprintf("unknown plan name: %s", newName))
	}
	currentRank, _ := plan.PlanName.Rank()
	if newRank <= currentRank {
		return nil, 0, models.ErrCannotDowngrade
	}
	period, ok := newType.PeriodDays()
	if !ok {
		return nil, 0, models.NewValidationError(fmt.Sprintf("unknown plan type: %s", newType))
	}

	entry := models.PlanCatalog[newName]
	now := time.Now()
	remaining := plan.DaysRemainingAt(now)
	newEnd := now.AddDate(0, 0, remaining+period)
	priceDelta := entry.PriceFor(newType) - plan.Price

	plan.PlanName = newName
	plan.PlanType = newType
	plan.Status = models.PlanStatusActive
	plan.EndDate = newEnd
	plan.Price = entry.PriceFor(newType)
	plan.Currency = entry.Currency
	plan.Features = entry.Features
	plan.DaysRemaining = plan.DaysRemainingAt(now)

	fields := bson.M{
		"plan_name":      plan.PlanName,
		"plan_type":      plan.PlanType,
		"status":         plan.Status,
		"end_date":       plan.EndDate,
		"price":          plan.Price,
		"currency":       plan.Currency,
		"features":       plan.Features,
		"days_remaining": plan.DaysRemaining,
	}
	if err := s.repo.UpdateFieldsWithSummary(ctx, providerID, fields, plan.Summary(now)); err != nil {
		return nil, 0, err
	}
	return plan, priceDelta, nil
}

// RenewPlan applies the same carry-over policy as UpgradePlan: an active plan
// extends by a full period on top of what remains, a lapsed one restarts from now.
func (s *planService) RenewPlan(ctx context.Context, providerID string, name models.PlanName, planType models.PlanType) (*models.ProviderPlan, error) {
	plan, err := s.repo.GetByProviderID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = plan.PlanName
	}
	if planType == "" {
		planType = plan.PlanType
	}
	entry, ok := models.PlanCatalog[name]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown plan name: %s", name))
	}
	period, ok := planType.PeriodDays()
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown plan type: %s", planType))
	}

	now := time.Now()
	remaining := 0
	if plan.Status == models.PlanStatusActive {
		remaining = plan.DaysRemainingAt(now)
	}

	plan.PlanName = name
	plan.PlanType = planType
	plan.Status = models.PlanStatusActive
	plan.EndDate = now.AddDate(0, 0, remaining+period)
	plan.Price = entry.PriceFor(planType)
	plan.Currency = entry.Currency
	plan.Features = entry.Features
	plan.DaysRemaining = plan.DaysRemainingAt(now)

	fields := bson.M{
		"plan_name":      plan.PlanName,
		"plan_type":      plan.PlanType,
		"status":         plan.Status,
		"end_date":       plan.EndDate,
		"price":          plan.Price,
		"currency":       plan.Currency,
		"features":       plan.Features,
		"days_remaining": plan.DaysRemaining,
	}
	if err := s.repo.UpdateFieldsWithSummary(ctx, providerID, fields, plan.Summary(now)); err != nil {
		return nil, err
	}
	return plan, nil
}

// CancelPlan stops auto-renewal; access persists until the natural end date.
func (s *planService) CancelPlan(ctx context.Context, providerID string) error {
	plan, err := s.repo.GetByProviderID(ctx, providerID)
	if err != nil {
		return err
	}

	now := time.Now()
	plan.Status = models.PlanStatusCancelled
	plan.AutoRenew = false

	fields := bson.M{
		"status":     models.PlanStatusCancelled,
		"auto_renew": false,
	}
	return s.repo.UpdateFieldsWithSummary(ctx, providerID, fields, plan.Summary(now))
}

// CheckPlanExpiration transitions an active plan whose period has run out to
// expired. Driven per provider on demand and by the daily sweep.
func (s *planService) CheckPlanExpiration(ctx context.Context, providerID string) (*models.ProviderPlan, error) {
	plan, err := s.repo.GetByProviderID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	plan.DaysRemaining = plan.DaysRemainingAt(now)
	if plan.Status != models.PlanStatusActive || plan.DaysRemaining > 0 {
		return plan, nil
	}

	plan.Status = models.PlanStatusExpired
	fields := bson.M{
		"status":         models.PlanStatusExpired,
		"days_remaining": 0,
	}
	if err := s.repo.UpdateFieldsWithSummary(ctx, providerID, fields, plan.Summary(now)); err != nil {
		return nil, err
	}

	s.notifyExpired(ctx, plan)
	return plan, nil
}

// SweepExpiredPlans is invoked by the scheduler; the engine itself has no timer.
func (s *planService) SweepExpiredPlans(ctx context.Context) {
	plans, err := s.repo.GetActive(ctx)
	if err != nil {
		log.Printf("[PLANS] expiration sweep failed to list active plans: %v", err)
		return
	}

	now := time.Now()
	expired := 0
	for i := range plans {
		plan := &plans[i]
		if plan.DaysRemainingAt(now) > 0 {
			continue
		}
		if _, err := s.CheckPlanExpiration(ctx, plan.ProviderID); err != nil {
			log.Printf("[PLANS] failed to expire plan for provider %s: %v", plan.ProviderID, err)
			continue
		}
		expired++
	}
	if expired > 0 {
		log.Printf("[PLANS] expiration sweep marked %d plan(s) expired", expired)
	}
}

func (s *planService) notifyExpired(ctx context.Context, plan *models.ProviderPlan) {
	if s.cfg == nil || s.cfg.Notifications.URL == "" {
		return
	}
	err := utils.SendNotification(ctx, s.cfg.Notifications, utils.NotificationRequest{
		UserID:       plan.ProviderID,
		Role:         string(models.RoleProvider),
		Title:        "Подписка истекла",
		Message:      "Срок действия вашего тарифа истёк. Продлите подписку, чтобы сохранить доступ.",
		Type:         "plan_expired",
		DeliveryType: "push",
	})
	if err != nil {
		log.Printf("[NOTIFY] failed to send plan_expired notification: %v", err)
	}
}
