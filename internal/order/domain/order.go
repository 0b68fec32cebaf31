package domain

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentOrder is the aggregate root. All mutation goes through Apply; the
// events buffer holds what has happened since load and is drained by the
// repository on save.
type PaymentOrder struct {
	ID                int64          `json:"id" gorm:"primaryKey"`
	OrderID           string         `json:"order_id" gorm:"type:text;not null;uniqueIndex"`
	TenantID          int64          `json:"tenant_id" gorm:"not null;uniqueIndex:uk_tenant_merchant_order,priority:1"`
	UserID            int64          `json:"user_id" gorm:"not null"`
	MerchantOrderID   string         `json:"merchant_order_id" gorm:"type:text;not null;uniqueIndex:uk_tenant_merchant_order,priority:2"`
	PaymentType       PaymentType    `json:"payment_type" gorm:"type:text;not null"`
	PaymentSubType    int32          `json:"payment_sub_type" gorm:"not null"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Currency          Currency       `json:"currency" gorm:"type:text;not null"`
	Status            OrderStatus    `json:"status" gorm:"type:text;not null"`
	RefundedAmount    int64          `json:"refunded_amount" gorm:"not null;default:0"`
	ThirdPartyOrderID string         `json:"third_party_order_id" gorm:"type:text"`
	ProductName       string         `json:"product_name" gorm:"type:text"`
	ProductDesc       string         `json:"product_desc" gorm:"type:text"`
	CallbackURL       string         `json:"callback_url" gorm:"type:text"`
	NotifyURL         string         `json:"notify_url" gorm:"type:text"`
	ClientIP          string         `json:"client_ip" gorm:"type:text"`
	ExtraData         datatypes.JSON `json:"extra_data" gorm:"type:jsonb"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null"`

	events []Event `json:"-" gorm:"-"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }

type NewOrderParams struct {
	OrderID         string
	TenantID        int64
	UserID          int64
	MerchantOrderID string
	PaymentType     PaymentType
	Amount          Money
	ProductName     string
	ProductDesc     string
	CallbackURL     string
	NotifyURL       string
	ClientIP        string
	ExtraData       datatypes.JSON
}

// NewPaymentOrder creates a Pending order and records OrderCreated.
func NewPaymentOrder(p NewOrderParams, now time.Time) *PaymentOrder {
	now = now.UTC()
	order := &PaymentOrder{
		OrderID:         p.OrderID,
		TenantID:        p.TenantID,
		UserID:          p.UserID,
		MerchantOrderID: p.MerchantOrderID,
		PaymentType:     p.PaymentType,
		PaymentSubType:  p.PaymentType.SubTypeCode(),
		Amount:          p.Amount.Amount,
		Currency:        p.Amount.Currency,
		Status:          StatusPending,
		ProductName:     p.ProductName,
		ProductDesc:     p.ProductDesc,
		CallbackURL:     p.CallbackURL,
		NotifyURL:       p.NotifyURL,
		ClientIP:        p.ClientIP,
		ExtraData:       p.ExtraData,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.events = append(order.events, NewOrderCreated(order.OrderID, now))
	return order
}

// Apply validates the event against the current status and mutates the order
// on success. On any failure the order is left exactly as it was.
func (o *PaymentOrder) Apply(ev Event) error {
	if ev.OrderID != o.OrderID {
		return &EventOrderMismatchError{OrderID: o.OrderID, EventOrderID: ev.OrderID}
	}

	next, err := o.nextStatus(ev)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case EventPaymentCompleted:
		o.ThirdPartyOrderID = ev.ThirdPartyOrderID
	case EventRefundRequested:
		o.RefundedAmount += ev.RefundAmount
	}

	o.Status = next
	o.UpdatedAt = ev.OccurredAt.UTC()
	o.events = append(o.events, ev)
	return nil
}

func (o *PaymentOrder) nextStatus(ev Event) (OrderStatus, error) {
	switch {
	case o.Status == StatusPending && ev.Kind == EventPaymentInitiated:
		return StatusProcessing, nil
	case o.Status == StatusProcessing && ev.Kind == EventPaymentCompleted:
		return StatusSuccess, nil
	case o.Status == StatusProcessing && ev.Kind == EventPaymentFailed:
		return StatusFailed, nil
	case (o.Status == StatusSuccess || o.Status == StatusPartiallyRefunded) && ev.Kind == EventRefundRequested:
		if ev.RefundAmount <= 0 || o.RefundedAmount+ev.RefundAmount > o.Amount {
			return "", ErrInvalidAmount
		}
		if o.RefundedAmount+ev.RefundAmount == o.Amount {
			return StatusRefunded, nil
		}
		return StatusPartiallyRefunded, nil
	case (o.Status == StatusRefunded || o.Status == StatusPartiallyRefunded) && ev.Kind == EventRefundCompleted:
		return o.Status, nil
	}
	return "", &InvalidTransitionError{From: o.Status, Event: ev.Kind}
}

func (o *PaymentOrder) InitiatePayment(paymentURL string, now time.Time) error {
	return o.Apply(NewPaymentInitiated(o.OrderID, paymentURL, now.UTC()))
}

func (o *PaymentOrder) CompletePayment(thirdPartyOrderID string, now time.Time) error {
	return o.Apply(NewPaymentCompleted(o.OrderID, thirdPartyOrderID, now.UTC()))
}

func (o *PaymentOrder) FailPayment(reason string, now time.Time) error {
	return o.Apply(NewPaymentFailed(o.OrderID, reason, now.UTC()))
}

func (o *PaymentOrder) RequestRefund(refundID string, amount int64, now time.Time) error {
	return o.Apply(NewRefundRequested(o.OrderID, refundID, amount, now.UTC()))
}

func (o *PaymentOrder) CompleteRefund(refundID string, now time.Time) error {
	return o.Apply(NewRefundCompleted(o.OrderID, refundID, now.UTC()))
}

// CanRefund reports whether a refund of amount is currently allowed.
func (o *PaymentOrder) CanRefund(amount int64) bool {
	if o.Status != StatusSuccess && o.Status != StatusPartiallyRefunded {
		return false
	}
	return amount > 0 && o.RefundedAmount+amount <= o.Amount
}

func (o *PaymentOrder) Events() []Event {
	return o.events
}

// TakeEvents drains the uncommitted event buffer. The repository calls this
// after the events have been persisted.
func (o *PaymentOrder) TakeEvents() []Event {
	evs := o.events
	o.events = nil
	return evs
}

func (o *PaymentOrder) Money() Money {
	return Money{Amount: o.Amount, Currency: o.Currency}
}
