package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace-app/internal/config"
	"marketplace-app/internal/models"
	"marketplace-app/internal/repository"
	"marketplace-app/internal/utils"
)

// PaymentGateway is the slice of the gateway client the order flow needs.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params utils.CheckoutSessionParams) (*utils.CheckoutSession, error)
}

type CreateOrderInput struct {
	ProviderID     string                `json:"provider_id" validate:"required"`
	ListingID      string                `json:"listing_id" validate:"required"`
	ServiceDetails models.ServiceDetails `json:"service_details" validate:"required"`
	BookingDetails models.BookingDetails `json:"booking_details" validate:"required"`
	Pricing        models.Pricing        `json:"pricing" validate:"required"`
}

type CancellationInput struct {
	Reason       string  `json:"reason" validate:"required"`
	RefundAmount float64 `json:"refund_amount" validate:"gte=0"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

type MessageInput struct {
	Text string `json:"text" validate:"required"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, input *CreateOrderInput, customerID string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
	GetOrdersByProvider(ctx context.Context, providerID string, status models.OrderStatus) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, actorID string, role models.Role) error
	UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, actorID string, role models.Role) error
	CancelOrder(ctx context.Context, id primitive.ObjectID, input *CancellationInput, actorID string, role models.Role) error
	AddReview(ctx context.Context, id primitive.ObjectID, input *ReviewInput, actorID string, role models.Role) error
	AddMessage(ctx context.Context, id primitive.ObjectID, input *MessageInput, actorID string, role models.Role) error
	CreatePaymentSession(ctx context.Context, id primitive.ObjectID, customerID string) (*utils.CheckoutSession, error)
	HandlePaymentSucceeded(ctx context.Context, orderID string, actorID string) error
	HandlePaymentFailed(ctx context.Context, orderID string, actorID string) error
}

type orderService struct {
	repo    repository.OrderRepository
	redis   *redis.Client
	gateway PaymentGateway
	cfg     *config.Config
}

func NewOrderService(repo repository.OrderRepository, rdb *redis.Client, gateway PaymentGateway, cfg *config.Config) OrderService {
	return &orderService{repo: repo, redis: rdb, gateway: gateway, cfg: cfg}
}

func (s *orderService) CreateOrder(ctx context.Context, input *CreateOrderInput, customerID string) (*models.Order, error) {
	if err := utils.GetValidator().Struct(input); err != nil {
		return nil, models.NewValidationError(utils.ParseErrors(err)...)
	}

	order := &models.Order{
		OrderNumber:    models.NewOrderNumber(),
		CustomerID:     customerID,
		ProviderID:     input.ProviderID,
		ListingID:      input.ListingID,
		ServiceDetails: input.ServiceDetails,
		BookingDetails: input.BookingDetails,
		Pricing:        input.Pricing,
		Status:         models.OrderPending,
		PaymentStatus:  models.PaymentPending,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	s.invalidateCustomerCache(ctx, customerID)

	return order, nil
}

func (s *orderService) GetOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *orderService) GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	cacheKey := fmt.Sprintf("orders_by_customer:%s", customerID)

	if s.redis != nil {
		if val, err := utils.GetFromCache(ctx, s.redis, cacheKey); err == nil {
			var cached []models.Order
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				return cached, nil
			}
		}
	}

	orders, err := s.repo.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(orders); err == nil {
			_ = utils.SetToCache(ctx, s.redis, cacheKey, string(data), utils.RedisCacheDuration)
		}
	}
	return orders, nil
}

func (s *orderService) GetOrdersByProvider(ctx context.Context, providerID string, status models.OrderStatus) ([]models.Order, error) {
	if status != "" && !status.IsValid() {
		return nil, models.ErrInvalidStatus
	}
	return s.repo.GetByProviderID(ctx, providerID, status)
}

// authorize enforces the actor/resource rule: customers act on their own orders,
// providers on theirs, admins on anything.
func authorize(order *models.Order, actorID string, role models.Role) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if order.CustomerID == actorID {
			return nil
		}
	case models.RoleProvider:
		if order.ProviderID == actorID {
			return nil
		}
	}
	return models.ErrUnauthorized
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, actorID string, role models.Role) error {
	if !status.IsValid() {
		return models.ErrInvalidStatus
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(order, actorID, role); err != nil {
		return err
	}

	fields := bson.M{"status": status}
	now := time.Now()
	switch status {
	case models.OrderInProgress:
		fields["actual_start_time"] = now
	case models.OrderCompleted:
		fields["actual_end_time"] = now
	}

	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)

	if status == models.OrderConfirmed {
		s.notify(ctx, order.CustomerID, string(models.RoleCustomer), "Заказ подтверждён",
			"Ваш заказ принят исполнителем.", "order_confirmed", order)
	}
	return nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, actorID string, role models.Role) error {
	if !status.IsValid() {
		return models.ErrInvalidPaymentStatus
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(order, actorID, role); err != nil {
		return err
	}

	if err := s.repo.UpdateFields(ctx, id, bson.M{"payment_status": status}); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)
	return nil
}

func (s *orderService) CancelOrder(ctx context.Context, id primitive.ObjectID, input *CancellationInput, actorID string, role models.Role) error {
	if err := utils.GetValidator().Struct(input); err != nil {
		return models.NewValidationError(utils.ParseErrors(err)...)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(order, actorID, role); err != nil {
		return err
	}
	if order.Status == models.OrderCompleted || order.Status == models.OrderCancelled {
		return models.ErrCannotCancel
	}

	cancellation := models.Cancellation{
		Reason:       input.Reason,
		CancelledBy:  string(role),
		CancelledAt:  time.Now(),
		RefundAmount: input.RefundAmount,
	}
	fields := bson.M{
		"status":       models.OrderCancelled,
		"cancellation": cancellation,
	}
	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)

	s.notify(ctx, order.ProviderID, string(models.RoleProvider), "Заказ отменён",
		"Один из ваших заказов был отменён.", "order_cancelled", order)
	return nil
}

func (s *orderService) AddReview(ctx context.Context, id primitive.ObjectID, input *ReviewInput, actorID string, role models.Role) error {
	if err := utils.GetValidator().Struct(input); err != nil {
		return models.NewValidationError(utils.ParseErrors(err)...)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	// only the owning customer may review
	if role != models.RoleCustomer || order.CustomerID != actorID {
		return models.ErrUnauthorized
	}
	if order.Status != models.OrderCompleted {
		return models.ErrCannotReview
	}
	if order.Review != nil {
		return models.ErrAlreadyReviewed
	}

	review := models.Review{
		Rating:    input.Rating,
		Comment:   input.Comment,
		CreatedAt: time.Now(),
	}
	if err := s.repo.UpdateFields(ctx, id, bson.M{"review": review}); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)
	return nil
}

func (s *orderService) AddMessage(ctx context.Context, id primitive.ObjectID, input *MessageInput, actorID string, role models.Role) error {
	if err := utils.GetValidator().Struct(input); err != nil {
		return models.NewValidationError(utils.ParseErrors(err)...)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	isCustomer := role == models.RoleCustomer && order.CustomerID == actorID
	isProvider := role == models.RoleProvider && order.ProviderID == actorID
	if !isCustomer && !isProvider {
		return models.ErrUnauthorized
	}

	msg := models.Message{
		SenderID:   actorID,
		SenderType: string(role),
		Text:       input.Text,
		Timestamp:  time.Now(),
		IsRead:     false,
	}
	if err := s.repo.AppendMessage(ctx, id, msg); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)
	return nil
}

func (s *orderService) CreatePaymentSession(ctx context.Context, id primitive.ObjectID, customerID string) (*utils.CheckoutSession, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, models.ErrUnauthorized
	}
	payable := order.Status == models.OrderPending || order.Status == models.OrderConfirmed
	if !payable || order.PaymentStatus == models.PaymentPaid {
		return nil, models.ErrInvalidOrderStatus
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, utils.CheckoutSessionParams{
		Amount:     order.Pricing.TotalAmount,
		Currency:   order.Pricing.Currency,
		SuccessURL: s.cfg.Gateway.SuccessURL,
		CancelURL:  s.cfg.Gateway.CancelURL,
		Metadata: map[string]string{
			"order_id":    order.ID.Hex(),
			"customer_id": customerID,
			"type":        models.MetaTypeOrderPayment,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateFields(ctx, id, bson.M{"checkout_session_id": session.ID}); err != nil {
		return nil, err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)
	return session, nil
}

// HandlePaymentSucceeded is the reconciliation write for a successful payment
// event: payment_status becomes paid and a still-pending order advances to
// confirmed. Both are absolute-value writes, so redelivered or reordered
// events land on the same end state.
func (s *orderService) HandlePaymentSucceeded(ctx context.Context, orderID string, actorID string) error {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return fmt.Errorf("invalid order ID: %w", err)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(order, actorID, models.RoleCustomer); err != nil {
		return err
	}

	fields := bson.M{"payment_status": models.PaymentPaid}
	if order.Status == models.OrderPending {
		fields["status"] = models.OrderConfirmed
	}
	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)

	if order.PaymentStatus != models.PaymentPaid {
		s.notify(ctx, order.CustomerID, string(models.RoleCustomer), "Оплата получена",
			"Оплата заказа прошла успешно.", "payment_succeeded", order)
	}
	return nil
}

// HandlePaymentFailed marks the payment axis only; business status is untouched.
func (s *orderService) HandlePaymentFailed(ctx context.Context, orderID string, actorID string) error {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return fmt.Errorf("invalid order ID: %w", err)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(order, actorID, models.RoleCustomer); err != nil {
		return err
	}

	if err := s.repo.UpdateFields(ctx, id, bson.M{"payment_status": models.PaymentFailed}); err != nil {
		return err
	}
	s.invalidateCustomerCache(ctx, order.CustomerID)
	return nil
}

func (s *orderService) invalidateCustomerCache(ctx context.Context, customerID string) {
	if s.redis == nil {
		return
	}
	cacheKey := fmt.Sprintf("orders_by_customer:%s", customerID)
	if err := utils.DeleteFromCache(ctx, s.redis, cacheKey); err != nil {
		log.Printf("Failed to invalidate cache: %v", err)
	}
}

func (s *orderService) notify(ctx context.Context, userID, role, title, message, typ string, order *models.Order) {
	if s.cfg == nil || s.cfg.Notifications.URL == "" {
		return
	}
	err := utils.SendNotification(ctx, s.cfg.Notifications, utils.NotificationRequest{
		UserID:       userID,
		Role:         role,
		Title:        title,
		Message:      message,
		Type:         typ,
		DeliveryType: "push",
		Metadata:     map[string]string{"order_id": order.ID.Hex()},
	})
	if err != nil {
		log.Printf("[NOTIFY] failed to send %s notification: %v", typ, err)
	}
}
