package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderInProgress, OrderCompleted, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentPartiallyRefunded:
		return true
	}
	return false
}

type ServiceDetails struct {
	Title       string `bson:"title" json:"title" validate:"required"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Category    string `bson:"category,omitempty" json:"category,omitempty"`
}

type BookingDetails struct {
	Date    string `bson:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `bson:"time" json:"time" validate:"required,datetime=15:04"`
	Address string `bson:"address,omitempty" json:"address,omitempty"`
	Notes   string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Pricing is snapshotted at order creation and never recomputed.
type Pricing struct {
	BaseAmount  float64 `bson:"base_amount" json:"base_amount" validate:"required,gt=0"`
	Taxes       float64 `bson:"taxes" json:"taxes" validate:"gte=0"`
	Fees        float64 `bson:"fees" json:"fees" validate:"gte=0"`
	Discounts   float64 `bson:"discounts" json:"discounts" validate:"gte=0"`
	TotalAmount float64 `bson:"total_amount" json:"total_amount" validate:"required,gt=0"`
	Currency    string  `bson:"currency" json:"currency" validate:"required,len=3"`
}

type Message struct {
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	SenderType string    `bson:"sender_type" json:"sender_type"`
	Text       string    `bson:"text" json:"text"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	IsRead     bool      `bson:"is_read" json:"is_read"`
}

type Review struct {
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Cancellation struct {
	Reason       string    `bson:"reason" json:"reason"`
	CancelledBy  string    `bson:"cancelled_by" json:"cancelled_by"`
	CancelledAt  time.Time `bson:"cancelled_at" json:"cancelled_at"`
	RefundAmount float64   `bson:"refund_amount" json:"refund_amount"`
}

type Order struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber string             `bson:"order_number" json:"order_number"`
	CustomerID  string             `bson:"customer_id" json:"customer_id"`
	ProviderID  string             `bson:"provider_id" json:"provider_id"`
	ListingID   string             `bson:"listing_id" json:"listing_id"`

	Status        OrderStatus   `bson:"status" json:"status"`
	PaymentStatus PaymentStatus `bson:"payment_status" json:"payment_status"`

	ServiceDetails ServiceDetails `bson:"service_details" json:"service_details"`
	BookingDetails BookingDetails `bson:"booking_details" json:"booking_details"`
	Pricing        Pricing        `bson:"pricing" json:"pricing"`

	Messages     []Message     `bson:"messages,omitempty" json:"messages,omitempty"`
	Review       *Review       `bson:"review,omitempty" json:"review,omitempty"`
	Cancellation *Cancellation `bson:"cancellation,omitempty" json:"cancellation,omitempty"`

	CheckoutSessionID string `bson:"checkout_session_id,omitempty" json:"checkout_session_id,omitempty"`
	PaymentIntentID   string `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	GatewayCustomerID string `bson:"gateway_customer_id,omitempty" json:"gateway_customer_id,omitempty"`
	SubscriptionID    string `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`

	ActualStartTime *time.Time `bson:"actual_start_time,omitempty" json:"actual_start_time,omitempty"`
	ActualEndTime   *time.Time `bson:"actual_end_time,omitempty" json:"actual_end_time,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber returns a human-readable order number: PNL-<epoch-ms>-<5 uppercase alnum>.
func NewOrderNumber() string {
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("PNL-%d-%s", time.Now().UnixMilli(), string(buf))
}
