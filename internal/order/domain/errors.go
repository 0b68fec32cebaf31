package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrOrderAlreadyExists = errors.New("order_already_exists")
	ErrRefundNotFound     = errors.New("refund_not_found")
	ErrInvalidOrderStatus = errors.New("invalid_order_status")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrCurrencyMismatch   = errors.New("currency_mismatch")
	ErrInvalidPaymentType = errors.New("invalid_payment_type")
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidEvent       = errors.New("invalid_event")
)

// EventOrderMismatchError rejects an event addressed to another order.
type EventOrderMismatchError struct {
	OrderID      string
	EventOrderID string
}

func (e *EventOrderMismatchError) Error() string {
	return fmt.Sprintf("event order id %q does not match order %q", e.EventOrderID, e.OrderID)
}

func (e *EventOrderMismatchError) Unwrap() error { return ErrInvalidEvent }

// InvalidTransitionError reports an event that is not legal from the order's
// current status. The order is left untouched.
type InvalidTransitionError struct {
	From  OrderStatus
	Event EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s from status %s", e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidEvent }
