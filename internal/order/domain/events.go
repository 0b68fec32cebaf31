package domain

import "time"

type EventKind string

const (
	EventOrderCreated     EventKind = "ORDER_CREATED"
	EventPaymentInitiated EventKind = "PAYMENT_INITIATED"
	EventPaymentCompleted EventKind = "PAYMENT_COMPLETED"
	EventPaymentFailed    EventKind = "PAYMENT_FAILED"
	EventRefundRequested  EventKind = "REFUND_REQUESTED"
	EventRefundCompleted  EventKind = "REFUND_COMPLETED"
)

// Event is a domain event produced by the order aggregate. Only the fields
// relevant to the kind are set.
type Event struct {
	Kind       EventKind `json:"kind"`
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`

	PaymentURL        string `json:"payment_url,omitempty"`
	ThirdPartyOrderID string `json:"third_party_order_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
	RefundID          string `json:"refund_id,omitempty"`
	RefundAmount      int64  `json:"refund_amount,omitempty"`
}

func NewOrderCreated(orderID string, at time.Time) Event {
	return Event{Kind: EventOrderCreated, OrderID: orderID, OccurredAt: at}
}

func NewPaymentInitiated(orderID, paymentURL string, at time.Time) Event {
	return Event{Kind: EventPaymentInitiated, OrderID: orderID, PaymentURL: paymentURL, OccurredAt: at}
}

func NewPaymentCompleted(orderID, thirdPartyOrderID string, at time.Time) Event {
	return Event{Kind: EventPaymentCompleted, OrderID: orderID, ThirdPartyOrderID: thirdPartyOrderID, OccurredAt: at}
}

func NewPaymentFailed(orderID, reason string, at time.Time) Event {
	return Event{Kind: EventPaymentFailed, OrderID: orderID, Reason: reason, OccurredAt: at}
}

func NewRefundRequested(orderID, refundID string, amount int64, at time.Time) Event {
	return Event{Kind: EventRefundRequested, OrderID: orderID, RefundID: refundID, RefundAmount: amount, OccurredAt: at}
}

func NewRefundCompleted(orderID, refundID string, at time.Time) Event {
	return Event{Kind: EventRefundCompleted, OrderID: orderID, RefundID: refundID, OccurredAt: at}
}

// EventRecord is the persisted form of an Event, appended in order within
// the same transaction that updates the projected order row.
type EventRecord struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	OrderID    string    `json:"order_id" gorm:"type:text;not null;index"`
	Kind       EventKind `json:"kind" gorm:"type:text;not null"`
	Seq        int32     `json:"seq" gorm:"not null"`
	Payload    []byte    `json:"payload" gorm:"type:jsonb;not null"`
	OccurredAt time.Time `json:"occurred_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_order_events" }
