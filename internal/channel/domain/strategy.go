package domain

import (
	"context"

	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
)

// CreateOrderResult is the channel's answer to order creation. H5 flows set
// PaymentURL; native SDK flows set PaymentParams for the client to consume.
type CreateOrderResult struct {
	PaymentURL    string            `json:"payment_url,omitempty"`
	PaymentParams map[string]string `json:"payment_params,omitempty"`
}

// CallbackResult is the verified, canonical view of a channel webhook.
type CallbackResult struct {
	MerchantOrderID   string
	ThirdPartyOrderID string
	Status            orderdomain.OrderStatus
	FailReason        string
	Raw               map[string]string
}

// QueryResult is the canonical view of a channel-side status poll.
type QueryResult struct {
	Status            orderdomain.OrderStatus
	ThirdPartyOrderID string
	FailReason        string
}

// RefundResult reports the channel's acceptance of a refund request.
type RefundResult struct {
	ThirdPartyRefundID string
	Accepted           bool
}

// Strategy is implemented once per payment type. Channel-side idempotency
// keys derive from order/refund ids so retried calls never double-charge.
type Strategy interface {
	PaymentType() orderdomain.PaymentType
	CreateOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*CreateOrderResult, error)
	QueryOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*QueryResult, error)
	HandleCallback(ctx context.Context, cfg *configdomain.ChannelConfig, payload []byte) (*CallbackResult, error)
	Refund(ctx context.Context, order *orderdomain.PaymentOrder, refund *orderdomain.RefundOrder, cfg *configdomain.ChannelConfig) (*RefundResult, error)

	// AckSuccess and AckFailure are the exact bytes the channel expects in
	// response to a webhook. Some channels retry on anything else.
	AckSuccess() (contentType string, body []byte)
	AckFailure(reason string) (contentType string, body []byte)
}
