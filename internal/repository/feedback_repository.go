package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"marketplace-app/internal/models"
)

type FeedbackRepository interface {
	Create(ctx context.Context, fb *models.Feedback) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Feedback, error)
	GetByProviderID(ctx context.Context, providerID string) ([]models.Feedback, error)
	ExistsByOrderAndCustomer(ctx context.Context, orderID, customerID string) (bool, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type feedbackRepository struct {
	collection *mongo.Collection
}

func NewFeedbackRepository(db *mongo.Database) FeedbackRepository {
	return &feedbackRepository{collection: db.Collection("feedback")}
}

func (r *feedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	fb.ID = primitive.NewObjectID()
	fb.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, fb)
	return err
}

func (r *feedbackRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Feedback, error) {
	var fb models.Feedback
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&fb)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

func (r *feedbackRepository) GetByProviderID(ctx context.Context, providerID string) ([]models.Feedback, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"provider_id": providerID})
	if err != nil {
		return nil, err
	}
	var results []models.Feedback
	err = cursor.All(ctx, &results)
	return results, err
}

func (r *feedbackRepository) ExistsByOrderAndCustomer(ctx context.Context, orderID, customerID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"order_id": orderID, "customer_id": customerID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *feedbackRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
