package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/pkg/httpclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Service delivers merchant notifications after an order reaches a new
// status. Delivery is best effort; failures are logged for reconciliation.
type Service struct {
	client  *httpclient.Client
	metrics *metrics.Metrics
	log     *zap.Logger
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p Params) *Service {
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = p.Config.OutboundTimeout
	clientCfg.MaxRetries = p.Config.NotifyMaxAttempts
	return &Service{
		client:  httpclient.New(clientCfg, p.Log),
		metrics: p.Metrics,
		log:     p.Log.Named("notify"),
	}
}

type notification struct {
	OrderID           string    `json:"order_id"`
	MerchantOrderID   string    `json:"merchant_order_id"`
	TenantID          int64     `json:"tenant_id"`
	Status            string    `json:"status"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	RefundedAmount    int64     `json:"refunded_amount"`
	ThirdPartyOrderID string    `json:"third_party_order_id,omitempty"`
	NotifiedAt        time.Time `json:"notified_at"`
}

// NotifyStatus posts the order's current status to its notify URL. Intended
// to run on its own goroutine; the passed context bounds the whole delivery.
func (s *Service) NotifyStatus(ctx context.Context, order *orderdomain.PaymentOrder) {
	if order.NotifyURL == "" {
		return
	}

	body, err := json.Marshal(notification{
		OrderID:           order.OrderID,
		MerchantOrderID:   order.MerchantOrderID,
		TenantID:          order.TenantID,
		Status:            string(order.Status),
		Amount:            order.Amount,
		Currency:          string(order.Currency),
		RefundedAmount:    order.RefundedAmount,
		ThirdPartyOrderID: order.ThirdPartyOrderID,
		NotifiedAt:        time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("notification marshal failed", zap.Error(err))
		return
	}

	resp, err := s.client.PostJSON(ctx, order.NotifyURL, body)
	if err != nil || !resp.OK() {
		s.metrics.RecordNotifyDelivery(ctx, "failed")
		fields := []zap.Field{
			zap.String("order_id", order.OrderID),
			zap.String("status", string(order.Status)),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("http_status", resp.StatusCode))
		}
		s.log.Warn("merchant notification failed", fields...)
		return
	}

	s.metrics.RecordNotifyDelivery(ctx, "delivered")
	s.log.Debug("merchant notified",
		zap.String("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
	)
}

var Module = fx.Module("notify",
	fx.Provide(NewService),
)
