package registry

import (
	"context"

	"github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"golang.org/x/sync/semaphore"
)

// Limited bounds outstanding outbound calls to one strategy. Acquisition is
// non-blocking: an exhausted limiter fails fast with ErrRateLimited instead
// of queuing. HandleCallback is exempt, webhooks must never be dropped.
type Limited struct {
	inner domain.Strategy
	sem   *semaphore.Weighted
}

func Limit(inner domain.Strategy, maxConcurrent int64) *Limited {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limited{inner: inner, sem: semaphore.NewWeighted(maxConcurrent)}
}

func (l *Limited) PaymentType() orderdomain.PaymentType {
	return l.inner.PaymentType()
}

func (l *Limited) CreateOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.CreateOrderResult, error) {
	if !l.sem.TryAcquire(1) {
		return nil, domain.ErrRateLimited
	}
	defer l.sem.Release(1)
	return l.inner.CreateOrder(ctx, order, cfg)
}

func (l *Limited) QueryOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.QueryResult, error) {
	if !l.sem.TryAcquire(1) {
		return nil, domain.ErrRateLimited
	}
	defer l.sem.Release(1)
	return l.inner.QueryOrder(ctx, order, cfg)
}

func (l *Limited) HandleCallback(ctx context.Context, cfg *configdomain.ChannelConfig, payload []byte) (*domain.CallbackResult, error) {
	return l.inner.HandleCallback(ctx, cfg, payload)
}

func (l *Limited) Refund(ctx context.Context, order *orderdomain.PaymentOrder, refund *orderdomain.RefundOrder, cfg *configdomain.ChannelConfig) (*domain.RefundResult, error) {
	if !l.sem.TryAcquire(1) {
		return nil, domain.ErrRateLimited
	}
	defer l.sem.Release(1)
	return l.inner.Refund(ctx, order, refund, cfg)
}

func (l *Limited) AckSuccess() (string, []byte) {
	return l.inner.AckSuccess()
}

func (l *Limited) AckFailure(reason string) (string, []byte) {
	return l.inner.AckFailure(reason)
}

var _ domain.Strategy = (*Limited)(nil)
