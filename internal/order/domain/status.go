package domain

import "fmt"

// OrderStatus is the projected state of a payment order. The persisted event
// log is the authoritative history; Status is derived from it.
type OrderStatus string

const (
	StatusPending           OrderStatus = "PENDING"
	StatusProcessing        OrderStatus = "PROCESSING"
	StatusSuccess           OrderStatus = "SUCCESS"
	StatusFailed            OrderStatus = "FAILED"
	StatusRefunded          OrderStatus = "REFUNDED"
	StatusPartiallyRefunded OrderStatus = "PARTIALLY_REFUNDED"
)

func ParseOrderStatus(value string) (OrderStatus, error) {
	switch OrderStatus(value) {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed,
		StatusRefunded, StatusPartiallyRefunded:
		return OrderStatus(value), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrderStatus, value)
}

// IsPaymentTerminal reports whether the payment leg has finished. Callbacks
// arriving for an order in one of these states are acknowledged without
// re-applying events.
func (s OrderStatus) IsPaymentTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible at all.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusRefunded
}

func (s OrderStatus) String() string {
	return string(s)
}
