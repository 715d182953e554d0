package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace-app/internal/models"
)

type fakeFeedbackRepo struct {
	feedback map[primitive.ObjectID]*models.Feedback
}

func newFakeFeedbackRepo() *fakeFeedbackRepo {
	return &fakeFeedbackRepo{feedback: map[primitive.ObjectID]*models.Feedback{}}
}

func (r *fakeFeedbackRepo) Create(_ context.Context, fb *models.Feedback) error {
	fb.ID = primitive.NewObjectID()
	fb.CreatedAt = time.Now()
	r.feedback[fb.ID] = fb
	return nil
}

func (r *fakeFeedbackRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Feedback, error) {
	fb, ok := r.feedback[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *fb
	return &copied, nil
}

func (r *fakeFeedbackRepo) GetByProviderID(_ context.Context, providerID string) ([]models.Feedback, error) {
	var out []models.Feedback
	for _, fb := range r.feedback {
		if fb.ProviderID == providerID {
			out = append(out, *fb)
		}
	}
	return out, nil
}

func (r *fakeFeedbackRepo) ExistsByOrderAndCustomer(_ context.Context, orderID, customerID string) (bool, error) {
	for _, fb := range r.feedback {
		if fb.OrderID == orderID && fb.CustomerID == customerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeFeedbackRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	if _, ok := r.feedback[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.feedback, id)
	return nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo(uids ...string) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*models.User{}}
	for _, uid := range uids {
		r.users[uid] = &models.User{UID: uid}
	}
	return r
}

func (r *fakeUserRepo) GetByUID(_ context.Context, uid string) (*models.User, error) {
	user, ok := r.users[uid]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) UpdateRating(_ context.Context, uid string, rating models.RatingSummary) error {
	user, ok := r.users[uid]
	if !ok {
		return models.ErrNotFound
	}
	user.Rating = &rating
	return nil
}

// completedPaidOrder seeds an order eligible for feedback.
func completedPaidOrder(repo *fakeOrderRepo, customerID, providerID string) primitive.ObjectID {
	order := &models.Order{
		CustomerID:    customerID,
		ProviderID:    providerID,
		ListingID:     "listing-1",
		Status:        models.OrderCompleted,
		PaymentStatus: models.PaymentPaid,
	}
	_ = repo.Create(context.Background(), order)
	return order.ID
}

func TestCreateFeedback_FoldsIntoRunningAverage(t *testing.T) {
	orders := newFakeOrderRepo()
	users := newFakeUserRepo("provider-1")
	svc := NewFeedbackService(newFakeFeedbackRepo(), orders, users)

	ratings := []int{5, 3, 4}
	for i, rating := range ratings {
		orderID := completedPaidOrder(orders, "customer-1", "provider-1")
		_, err := svc.CreateFeedback(context.Background(), orderID, &FeedbackInput{Rating: rating}, "customer-1")
		if err != nil {
			t.Fatalf("feedback %d: %v", i+1, err)
		}
	}

	summary := users.users["provider-1"].Rating
	if summary == nil {
		t.Fatal("rating summary was never written")
	}
	if summary.Count != 3 {
		t.Errorf("count = %d, want 3", summary.Count)
	}
	if summary.Average < 3.999 || summary.Average > 4.001 {
		t.Errorf("average = %f, want 4.0", summary.Average)
	}
}

func TestCreateFeedback_Guards(t *testing.T) {
	orders := newFakeOrderRepo()
	users := newFakeUserRepo("provider-1")
	svc := NewFeedbackService(newFakeFeedbackRepo(), orders, users)
	input := &FeedbackInput{Rating: 5}

	// order not completed
	pending := &models.Order{CustomerID: "customer-1", ProviderID: "provider-1",
		Status: models.OrderPending, PaymentStatus: models.PaymentPending}
	_ = orders.Create(context.Background(), pending)
	_, err := svc.CreateFeedback(context.Background(), pending.ID, input, "customer-1")
	if !errors.Is(err, models.ErrCannotReview) {
		t.Fatalf("pending order: expected ErrCannotReview, got %v", err)
	}

	// completed but unpaid
	unpaid := &models.Order{CustomerID: "customer-1", ProviderID: "provider-1",
		Status: models.OrderCompleted, PaymentStatus: models.PaymentPending}
	_ = orders.Create(context.Background(), unpaid)
	_, err = svc.CreateFeedback(context.Background(), unpaid.ID, input, "customer-1")
	if !errors.Is(err, models.ErrCannotReview) {
		t.Fatalf("unpaid order: expected ErrCannotReview, got %v", err)
	}

	// not the owning customer
	orderID := completedPaidOrder(orders, "customer-1", "provider-1")
	_, err = svc.CreateFeedback(context.Background(), orderID, input, "someone-else")
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("foreign customer: expected ErrUnauthorized, got %v", err)
	}

	// duplicate per order+customer
	if _, err := svc.CreateFeedback(context.Background(), orderID, input, "customer-1"); err != nil {
		t.Fatalf("first feedback: %v", err)
	}
	_, err = svc.CreateFeedback(context.Background(), orderID, input, "customer-1")
	if !errors.Is(err, models.ErrAlreadyReviewed) {
		t.Fatalf("duplicate feedback: expected ErrAlreadyReviewed, got %v", err)
	}

	// rating out of range
	_, err = svc.CreateFeedback(context.Background(), completedPaidOrder(orders, "customer-1", "provider-1"),
		&FeedbackInput{Rating: 6}, "customer-1")
	var validation *models.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("rating 6: expected ValidationError, got %v", err)
	}
}

func TestDeleteFeedback_RollsBackAverage(t *testing.T) {
	orders := newFakeOrderRepo()
	users := newFakeUserRepo("provider-1")
	svc := NewFeedbackService(newFakeFeedbackRepo(), orders, users)

	first, err := svc.CreateFeedback(context.Background(),
		completedPaidOrder(orders, "customer-1", "provider-1"), &FeedbackInput{Rating: 5}, "customer-1")
	if err != nil {
		t.Fatalf("first feedback: %v", err)
	}
	if _, err := svc.CreateFeedback(context.Background(),
		completedPaidOrder(orders, "customer-2", "provider-1"), &FeedbackInput{Rating: 3}, "customer-2"); err != nil {
		t.Fatalf("second feedback: %v", err)
	}

	if err := svc.DeleteFeedback(context.Background(), first.ID, "customer-1", models.RoleCustomer); err != nil {
		t.Fatalf("DeleteFeedback: %v", err)
	}

	summary := users.users["provider-1"].Rating
	if summary.Count != 1 {
		t.Errorf("count = %d, want 1", summary.Count)
	}
	if summary.Average < 2.999 || summary.Average > 3.001 {
		t.Errorf("average = %f, want 3.0 after removal", summary.Average)
	}
}

func TestDeleteFeedback_LastRemovalResetsSummary(t *testing.T) {
	orders := newFakeOrderRepo()
	users := newFakeUserRepo("provider-1")
	svc := NewFeedbackService(newFakeFeedbackRepo(), orders, users)

	fb, err := svc.CreateFeedback(context.Background(),
		completedPaidOrder(orders, "customer-1", "provider-1"), &FeedbackInput{Rating: 4}, "customer-1")
	if err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}
	if err := svc.DeleteFeedback(context.Background(), fb.ID, "admin-1", models.RoleAdmin); err != nil {
		t.Fatalf("DeleteFeedback: %v", err)
	}

	summary := users.users["provider-1"].Rating
	if summary.Count != 0 || summary.Average != 0 {
		t.Errorf("summary = %+v, want zeroed", summary)
	}
}

type failingUserRepo struct{}

func (failingUserRepo) GetByUID(context.Context, string) (*models.User, error) {
	return nil, errors.New("users collection unavailable")
}

func (failingUserRepo) UpdateRating(context.Context, string, models.RatingSummary) error {
	return errors.New("users collection unavailable")
}

func TestCreateFeedback_SurvivesSummaryFailure(t *testing.T) {
	orders := newFakeOrderRepo()
	svc := NewFeedbackService(newFakeFeedbackRepo(), orders, failingUserRepo{})

	orderID := completedPaidOrder(orders, "customer-1", "provider-1")
	fb, err := svc.CreateFeedback(context.Background(), orderID, &FeedbackInput{Rating: 5}, "customer-1")
	if err != nil {
		t.Fatalf("committed feedback must not surface a summary error, got %v", err)
	}
	if fb == nil || fb.Rating != 5 {
		t.Fatalf("feedback = %+v", fb)
	}

	// the document stands, so a retry is a duplicate
	_, err = svc.CreateFeedback(context.Background(), orderID, &FeedbackInput{Rating: 5}, "customer-1")
	if !errors.Is(err, models.ErrAlreadyReviewed) {
		t.Fatalf("retry: expected ErrAlreadyReviewed, got %v", err)
	}
}

func TestDeleteFeedback_Authorization(t *testing.T) {
	orders := newFakeOrderRepo()
	users := newFakeUserRepo("provider-1")
	svc := NewFeedbackService(newFakeFeedbackRepo(), orders, users)

	fb, err := svc.CreateFeedback(context.Background(),
		completedPaidOrder(orders, "customer-1", "provider-1"), &FeedbackInput{Rating: 4}, "customer-1")
	if err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}

	err = svc.DeleteFeedback(context.Background(), fb.ID, "provider-1", models.RoleProvider)
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("provider delete: expected ErrUnauthorized, got %v", err)
	}
	err = svc.DeleteFeedback(context.Background(), fb.ID, "customer-2", models.RoleCustomer)
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("foreign customer delete: expected ErrUnauthorized, got %v", err)
	}
}
