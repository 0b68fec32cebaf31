package domain

import "time"

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "REQUESTED"
	RefundStatusSuccess   RefundStatus = "SUCCESS"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// RefundOrder is the ledger row recorded for every refund issued against a
// payment order.
type RefundOrder struct {
	ID                 int64        `json:"id" gorm:"primaryKey"`
	RefundID           string       `json:"refund_id" gorm:"type:text;not null;uniqueIndex"`
	OrderID            string       `json:"order_id" gorm:"type:text;not null;index"`
	TenantID           int64        `json:"tenant_id" gorm:"not null;index"`
	Amount             int64        `json:"amount" gorm:"not null"`
	Currency           Currency     `json:"currency" gorm:"type:text;not null"`
	Reason             string       `json:"reason" gorm:"type:text"`
	Status             RefundStatus `json:"status" gorm:"type:text;not null"`
	ThirdPartyRefundID string       `json:"third_party_refund_id" gorm:"type:text"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (RefundOrder) TableName() string { return "refund_orders" }
