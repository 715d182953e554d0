package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Feedback struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID    string             `bson:"order_id" json:"order_id"`
	CustomerID string             `bson:"customer_id" json:"customer_id"`
	ProviderID string             `bson:"provider_id" json:"provider_id"`
	ListingID  string             `bson:"listing_id,omitempty" json:"listing_id,omitempty"`
	Rating     int                `bson:"rating" json:"rating"`
	Comment    string             `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
