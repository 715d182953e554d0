package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrInvalidOrderStatus   = errors.New("order is not payable in its current status")
	ErrCannotCancel         = errors.New("order cannot be cancelled")
	ErrCannotReview         = errors.New("order cannot be reviewed")
	ErrAlreadyReviewed      = errors.New("order already reviewed")
	ErrPlanNotFound         = errors.New("provider plan not found")
	ErrCannotDowngrade      = errors.New("plan downgrade is not allowed")
	ErrGateway              = errors.New("payment gateway error")
	ErrSignature            = errors.New("webhook signature verification failed")
)

// ValidationError carries every violated field, not just the first one.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, "; "))
}

func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}
