package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PlanName string

const (
	PlanFree       PlanName = "free"
	PlanBasic      PlanName = "basic"
	PlanPremium    PlanName = "premium"
	PlanEnterprise PlanName = "enterprise"
)

// planRanks fixes the upgrade ordering; a plan may only move strictly up.
var planRanks = map[PlanName]int{
	PlanFree:       0,
	PlanBasic:      1,
	PlanPremium:    2,
	PlanEnterprise: 3,
}

func (p PlanName) Rank() (int, bool) {
	rank, ok := planRanks[p]
	return rank, ok
}

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// PeriodDays returns the subscription period length for the billing cycle.
func (t PlanType) PeriodDays() (int, bool) {
	switch t {
	case PlanMonthly:
		return 30, true
	case PlanYearly:
		return 365, true
	}
	return 0, false
}

type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusActive    PlanStatus = "active"
	PlanStatusExpired   PlanStatus = "expired"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// PlanFeatures is copied from the catalog at activation time so later catalog
// changes never alter what an existing subscriber already paid for.
type PlanFeatures struct {
	MaxListings      int  `bson:"max_listings" json:"max_listings"`
	FeaturedListings int  `bson:"featured_listings" json:"featured_listings"`
	Analytics        bool `bson:"analytics" json:"analytics"`
	PrioritySupport  bool `bson:"priority_support" json:"priority_support"`
}

type ProviderPlan struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProviderID string             `bson:"provider_id" json:"provider_id"`

	PlanName PlanName   `bson:"plan_name" json:"plan_name"`
	PlanType PlanType   `bson:"plan_type" json:"plan_type"`
	Status   PlanStatus `bson:"status" json:"status"`

	StartDate time.Time `bson:"start_date" json:"start_date"`
	EndDate   time.Time `bson:"end_date" json:"end_date"`
	// DaysRemaining is recomputed on every read, the stored value is informational.
	DaysRemaining int `bson:"days_remaining" json:"days_remaining"`

	Price     float64      `bson:"price" json:"price"`
	Currency  string       `bson:"currency" json:"currency"`
	Features  PlanFeatures `bson:"features" json:"features"`
	AutoRenew bool         `bson:"auto_renew" json:"auto_renew"`

	CheckoutSessionID string `bson:"checkout_session_id,omitempty" json:"checkout_session_id,omitempty"`
	PaymentIntentID   string `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	GatewayCustomerID string `bson:"gateway_customer_id,omitempty" json:"gateway_customer_id,omitempty"`
	SubscriptionID    string `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DaysRemainingAt computes max(0, ceil((end-now)/24h)).
func (p *ProviderPlan) DaysRemainingAt(now time.Time) int {
	remaining := p.EndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// PlanSummary is the denormalized copy kept on the provider's user record.
type PlanSummary struct {
	PlanName      PlanName     `bson:"plan_name" json:"plan_name"`
	PlanType      PlanType     `bson:"plan_type" json:"plan_type"`
	Status        PlanStatus   `bson:"status" json:"status"`
	EndDate       time.Time    `bson:"end_date" json:"end_date"`
	DaysRemaining int          `bson:"days_remaining" json:"days_remaining"`
	Features      PlanFeatures `bson:"features" json:"features"`
}

func (p *ProviderPlan) Summary(now time.Time) PlanSummary {
	return PlanSummary{
		PlanName:      p.PlanName,
		PlanType:      p.PlanType,
		Status:        p.Status,
		EndDate:       p.EndDate,
		DaysRemaining: p.DaysRemainingAt(now),
		Features:      p.Features,
	}
}

// CatalogEntry is a static plan definition: per-cycle price plus the feature bundle.
type CatalogEntry struct {
	MonthlyPrice float64
	YearlyPrice  float64
	Currency     string
	Features     PlanFeatures
}

// PlanCatalog is the static source plans are snapshotted from.
var PlanCatalog = map[PlanName]CatalogEntry{
	PlanFree: {
		MonthlyPrice: 0,
		YearlyPrice:  0,
		Currency:     "USD",
		Features:     PlanFeatures{MaxListings: 3},
	},
	PlanBasic: {
		MonthlyPrice: 19.99,
		YearlyPrice:  199.99,
		Currency:     "USD",
		Features:     PlanFeatures{MaxListings: 25, FeaturedListings: 2},
	},
	PlanPremium: {
		MonthlyPrice: 49.99,
		YearlyPrice:  499.99,
		Currency:     "USD",
		Features:     PlanFeatures{MaxListings: 100, FeaturedListings: 10, Analytics: true},
	},
	PlanEnterprise: {
		MonthlyPrice: 149.99,
		YearlyPrice:  1499.99,
		Currency:     "USD",
		Features:     PlanFeatures{MaxListings: -1, FeaturedListings: 50, Analytics: true, PrioritySupport: true},
	},
}

func (e CatalogEntry) PriceFor(t PlanType) float64 {
	if t == PlanYearly {
		return e.YearlyPrice
	}
	return e.MonthlyPrice
}
