package service

import (
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"gorm.io/datatypes"
)

type CreateOrderRequest struct {
	TenantID        int64          `json:"tenant_id" binding:"required"`
	UserID          int64          `json:"user_id" binding:"required"`
	MerchantOrderID string         `json:"merchant_order_id" binding:"required"`
	PaymentType     string         `json:"payment_type" binding:"required"`
	Amount          int64          `json:"amount" binding:"required"`
	Currency        string         `json:"currency" binding:"required"`
	ProductName     string         `json:"product_name" binding:"required"`
	ProductDesc     string         `json:"product_desc"`
	CallbackURL     string         `json:"callback_url"`
	NotifyURL       string         `json:"notify_url"`
	ClientIP        string         `json:"-"`
	ExtraData       datatypes.JSON `json:"extra_data"`
}

type CreateOrderResponse struct {
	OrderID       string                  `json:"order_id"`
	Status        orderdomain.OrderStatus `json:"status"`
	PaymentURL    string                  `json:"payment_url,omitempty"`
	PaymentParams map[string]string       `json:"payment_params,omitempty"`
}

type ListOrdersRequest struct {
	Filter orderdomain.ListOrderFilter
	Page   pagination.Pagination
}

type ListOrdersResponse struct {
	Orders   []*orderdomain.PaymentOrder `json:"orders"`
	PageInfo *pagination.PageInfo        `json:"page_info"`
}

type RefundRequest struct {
	OrderID string `json:"-"`
	Amount  int64  `json:"amount" binding:"required"`
	Reason  string `json:"reason"`
}

type RefundResponse struct {
	RefundID string                   `json:"refund_id"`
	OrderID  string                   `json:"order_id"`
	Status   orderdomain.RefundStatus `json:"status"`
	Amount   int64                    `json:"amount"`
}

// CallbackAck carries the channel-required acknowledgement bytes. Exact
// bytes matter: channels retry webhooks on anything else.
type CallbackAck struct {
	ContentType string
	Body        []byte
}
