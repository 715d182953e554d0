package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-app/internal/models"
)

type PlanRepository interface {
	GetByProviderID(ctx context.Context, providerID string) (*models.ProviderPlan, error)
	GetActive(ctx context.Context) ([]models.ProviderPlan, error)
	// SavePlanWithSummary upserts the plan document and the denormalized summary on
	// the provider's user record inside one multi-document transaction, so the two
	// writes commit or fail together.
	SavePlanWithSummary(ctx context.Context, plan *models.ProviderPlan, summary models.PlanSummary) error
	UpdateFieldsWithSummary(ctx context.Context, providerID string, fields bson.M, summary models.PlanSummary) error
}

type planRepository struct {
	client *mongo.Client
	plans  *mongo.Collection
	users  *mongo.Collection
}

func NewPlanRepository(client *mongo.Client, db *mongo.Database) PlanRepository {
	return &planRepository{
		client: client,
		plans:  db.Collection("provider_plans"),
		users:  db.Collection("users"),
	}
}

func (r *planRepository) GetByProviderID(ctx context.Context, providerID string) (*models.ProviderPlan, error) {
	var plan models.ProviderPlan
	err := r.plans.FindOne(ctx, bson.M{"provider_id": providerID}).Decode(&plan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepository) GetActive(ctx context.Context) ([]models.ProviderPlan, error) {
	cursor, err := r.plans.Find(ctx, bson.M{"status": models.PlanStatusActive})
	if err != nil {
		return nil, err
	}
	var plans []models.ProviderPlan
	err = cursor.All(ctx, &plans)
	return plans, err
}

func (r *planRepository) SavePlanWithSummary(ctx context.Context, plan *models.ProviderPlan, summary models.PlanSummary) error {
	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		opts := options.Replace().SetUpsert(true)
		if _, err := r.plans.ReplaceOne(sc, bson.M{"provider_id": plan.ProviderID}, plan, opts); err != nil {
			return nil, err
		}
		update := bson.M{"$set": bson.M{"plan": summary, "updated_at": now}}
		if _, err := r.users.UpdateOne(sc, bson.M{"uid": plan.ProviderID}, update); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (r *planRepository) UpdateFieldsWithSummary(ctx context.Context, providerID string, fields bson.M, summary models.PlanSummary) error {
	now := time.Now()
	fields["updated_at"] = now

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.plans.UpdateOne(sc, bson.M{"provider_id": providerID}, bson.M{"$set": fields})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, models.ErrPlanNotFound
		}
		update := bson.M{"$set": bson.M{"plan": summary, "updated_at": now}}
		if _, err := r.users.UpdateOne(sc, bson.M{"uid": providerID}, update); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}
