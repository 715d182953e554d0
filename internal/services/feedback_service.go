package services

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace-app/internal/models"
	"marketplace-app/internal/repository"
	"marketplace-app/internal/utils"
)

type FeedbackInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

type FeedbackService interface {
	CreateFeedback(ctx context.Context, orderID primitive.ObjectID, input *FeedbackInput, customerID string) (*models.Feedback, error)
	GetProviderFeedback(ctx context.Context, providerID string) ([]models.Feedback, error)
	DeleteFeedback(ctx context.Context, id primitive.ObjectID, actorID string, role models.Role) error
}

type feedbackService struct {
	repo   repository.FeedbackRepository
	orders repository.OrderRepository
	users  repository.UserRepository
}

func NewFeedbackService(repo repository.FeedbackRepository, orders repository.OrderRepository, users repository.UserRepository) FeedbackService {
	return &feedbackService{repo: repo, orders: orders, users: users}
}

// CreateFeedback stores an immutable rating for a completed, paid order and
// folds it into the provider's running average.
func (s *feedbackService) CreateFeedback(ctx context.Context, orderID primitive.ObjectID, input *FeedbackInput, customerID string) (*models.Feedback, error) {
	if err := utils.GetValidator().Struct(input); err != nil {
		return nil, models.NewValidationError(utils.ParseErrors(err)...)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, models.ErrUnauthorized
	}
	if order.Status != models.OrderCompleted || order.PaymentStatus != models.PaymentPaid {
		return nil, models.ErrCannotReview
	}

	exists, err := s.repo.ExistsByOrderAndCustomer(ctx, orderID.Hex(), customerID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrAlreadyReviewed
	}

	fb := &models.Feedback{
		OrderID:    orderID.Hex(),
		CustomerID: customerID,
		ProviderID: order.ProviderID,
		ListingID:  order.ListingID,
		Rating:     input.Rating,
		Comment:    input.Comment,
	}
	if err := s.repo.Create(ctx, fb); err != nil {
		return nil, err
	}

	// The feedback document is already committed; a failed summary update must
	// not surface as an error, or a retry would hit ErrAlreadyReviewed.
	if err := s.applyRatingDelta(ctx, order.ProviderID, fb.Rating, +1); err != nil {
		log.Printf("[FEEDBACK] failed to update rating summary for provider %s: %v", order.ProviderID, err)
	}
	return fb, nil
}

func (s *feedbackService) GetProviderFeedback(ctx context.Context, providerID string) ([]models.Feedback, error) {
	return s.repo.GetByProviderID(ctx, providerID)
}

func (s *feedbackService) DeleteFeedback(ctx context.Context, id primitive.ObjectID, actorID string, role models.Role) error {
	fb, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if role != models.RoleAdmin && !(role == models.RoleCustomer && fb.CustomerID == actorID) {
		return models.ErrUnauthorized
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.applyRatingDelta(ctx, fb.ProviderID, fb.Rating, -1); err != nil {
		log.Printf("[FEEDBACK] failed to update rating summary for provider %s: %v", fb.ProviderID, err)
	}
	return nil
}

// applyRatingDelta updates the denormalized running average incrementally;
// the raw samples live only in the feedback collection.
func (s *feedbackService) applyRatingDelta(ctx context.Context, providerID string, rating int, direction int) error {
	user, err := s.users.GetByUID(ctx, providerID)
	if err != nil {
		return err
	}

	current := models.RatingSummary{}
	if user.Rating != nil {
		current = *user.Rating
	}

	var next models.RatingSummary
	if direction > 0 {
		next.Count = current.Count + 1
		next.Average = (current.Average*float64(current.Count) + float64(rating)) / float64(next.Count)
	} else {
		next.Count = current.Count - 1
		if next.Count <= 0 {
			next = models.RatingSummary{}
		} else {
			next.Average = (current.Average*float64(current.Count) - float64(rating)) / float64(next.Count)
		}
	}

	return s.users.UpdateRating(ctx, providerID, next)
}
