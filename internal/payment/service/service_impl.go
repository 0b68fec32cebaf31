package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	channeldomain "github.com/smallbiznis/payflow/internal/channel/domain"
	"github.com/smallbiznis/payflow/internal/channel/registry"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/notify"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/internal/risk"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       orderdomain.Repository
	Registry   *registry.Registry
	Configs    configdomain.Provider
	Risk       *risk.Service       `optional:"true"`
	Notifier   *notify.Service     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service orchestrates order creation, status reconciliation, callbacks and
// refunds across the channel strategies.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       orderdomain.Repository
	registry   *registry.Registry
	configs    configdomain.Provider
	risk       *risk.Service
	notifier   *notify.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		registry:   p.Registry,
		configs:    p.Configs,
		risk:       p.Risk,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateOrder validates and persists a Pending order, then asks the channel
// for payment credentials. A channel failure leaves the order Pending and
// re-queryable; it is never silently advanced.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	paymentType, err := orderdomain.ParsePaymentType(req.PaymentType)
	if err != nil {
		return nil, err
	}
	currency, err := orderdomain.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, orderdomain.ErrInvalidAmount
	}
	amount, err := orderdomain.NewMoney(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	if req.TenantID <= 0 {
		return nil, orderdomain.ErrInvalidTenant
	}

	if s.risk != nil {
		if err := s.risk.Check(ctx, risk.CheckParams{
			TenantID: req.TenantID,
			UserID:   req.UserID,
			ClientIP: req.ClientIP,
			Amount:   req.Amount,
		}); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.FindByTenantOrder(ctx, s.db, req.TenantID, req.MerchantOrderID); err == nil {
		return nil, orderdomain.ErrOrderAlreadyExists
	} else if !errors.Is(err, orderdomain.ErrOrderNotFound) {
		return nil, err
	}

	strategy, err := s.registry.Resolve(paymentType)
	if err != nil {
		return nil, err
	}
	channelCfg, err := s.configs.Get(ctx, req.TenantID, paymentType.SubTypeCode())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := orderdomain.NewPaymentOrder(orderdomain.NewOrderParams{
		OrderID:         ulid.Make().String(),
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		MerchantOrderID: req.MerchantOrderID,
		PaymentType:     paymentType,
		Amount:          amount,
		ProductName:     req.ProductName,
		ProductDesc:     req.ProductDesc,
		CallbackURL:     req.CallbackURL,
		NotifyURL:       req.NotifyURL,
		ClientIP:        req.ClientIP,
		ExtraData:       req.ExtraData,
	}, now)

	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	result, err := strategy.CreateOrder(ctx, order, channelCfg)
	if err != nil {
		if errors.Is(err, channeldomain.ErrRateLimited) {
			s.obsMetrics.RecordChannelThrottled(ctx, string(paymentType))
		}
		s.log.Error("channel create failed, order left pending",
			zap.String("order_id", order.OrderID),
			zap.String("payment_type", string(paymentType)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := order.InitiatePayment(result.PaymentURL, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, s.db, order); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordOrderCreated(ctx, string(paymentType))
	s.log.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.Int64("tenant_id", order.TenantID),
		zap.String("payment_type", string(paymentType)),
		zap.Int64("amount", order.Amount),
	)

	return &CreateOrderResponse{
		OrderID:       order.OrderID,
		Status:        order.Status,
		PaymentURL:    result.PaymentURL,
		PaymentParams: result.PaymentParams,
	}, nil
}

// QueryOrder returns the order, reconciling non-terminal status against the
// channel first. Terminal orders short-circuit without an outbound call.
func (s *Service) QueryOrder(ctx context.Context, orderID string) (*orderdomain.PaymentOrder, error) {
	order, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsPaymentTerminal() {
		return order, nil
	}

	strategy, err := s.registry.Resolve(order.PaymentType)
	if err != nil {
		return nil, err
	}
	channelCfg, err := s.configs.Get(ctx, order.TenantID, order.PaymentSubType)
	if err != nil {
		return nil, err
	}

	result, err := strategy.QueryOrder(ctx, order, channelCfg)
	if err != nil {
		if errors.Is(err, channeldomain.ErrRateLimited) {
			s.obsMetrics.RecordChannelThrottled(ctx, string(order.PaymentType))
		}
		return nil, err
	}

	if err := s.advance(ctx, order, result.Status, result.ThirdPartyOrderID, result.FailReason); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders pages through orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, req ListOrdersRequest) (*ListOrdersResponse, error) {
	size := req.Page.PageSize
	if size <= 0 {
		size = 10
	}
	orders, err := s.repo.List(ctx, s.db, req.Filter, req.Page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(orders, size, func(o *orderdomain.PaymentOrder) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(o.ID, 10)})
		return token
	})
	if len(orders) > size {
		orders = orders[:size]
	}
	return &ListOrdersResponse{Orders: orders, PageInfo: pageInfo}, nil
}

// ListOrderEvents returns the order's event log in append order.
func (s *Service) ListOrderEvents(ctx context.Context, orderID string) ([]orderdomain.EventRecord, error) {
	if _, err := s.repo.FindByOrderID(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, s.db, orderID)
}

// HandleCallback verifies and applies a channel webhook. The returned ack is
// always channel-shaped; processing failures after signature verification
// still acknowledge receipt so the channel stops retrying.
func (s *Service) HandleCallback(ctx context.Context, paymentTypeRaw string, tenantID int64, payload []byte) (*CallbackAck, error) {
	paymentType, err := orderdomain.ParsePaymentType(paymentTypeRaw)
	if err != nil {
		return nil, err
	}
	strategy, err := s.registry.Resolve(paymentType)
	if err != nil {
		return nil, err
	}

	channelCfg, err := s.configs.Get(ctx, tenantID, paymentType.SubTypeCode())
	if err != nil {
		contentType, body := strategy.AckFailure("configuration")
		return &CallbackAck{ContentType: contentType, Body: body}, err
	}

	result, err := strategy.HandleCallback(ctx, channelCfg, payload)
	if err != nil {
		s.obsMetrics.RecordCallback(ctx, string(paymentType), "rejected")
		contentType, body := strategy.AckFailure("verification failed")
		return &CallbackAck{ContentType: contentType, Body: body}, err
	}

	ackContentType, ackBody := strategy.AckSuccess()
	ack := &CallbackAck{ContentType: ackContentType, Body: ackBody}

	order, err := s.repo.FindByOrderID(ctx, s.db, result.MerchantOrderID)
	if err != nil {
		// Acknowledge unknown orders to stop the channel's retry loop; the
		// payload is logged for manual reconciliation.
		s.obsMetrics.RecordCallback(ctx, string(paymentType), "unknown_order")
		s.log.Warn("callback for unknown order",
			zap.String("payment_type", string(paymentType)),
			zap.String("order_id", result.MerchantOrderID),
			zap.Error(err),
		)
		return ack, nil
	}

	if order.Status.IsPaymentTerminal() {
		s.obsMetrics.RecordCallback(ctx, string(paymentType), "duplicate")
		return ack, nil
	}

	if err := s.advance(ctx, order, result.Status, result.ThirdPartyOrderID, result.FailReason); err != nil {
		s.obsMetrics.RecordCallback(ctx, string(paymentType), "error")
		s.log.Error("callback processing failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return ack, nil
	}

	s.obsMetrics.RecordCallback(ctx, string(paymentType), "applied")
	return ack, nil
}

// CreateRefund asks the channel to refund part or all of a Success order.
// The order's refund branch is only entered after the channel accepts.
func (s *Service) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	order, err := s.repo.FindByOrderID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.CanRefund(req.Amount) {
		if order.Status != orderdomain.StatusSuccess && order.Status != orderdomain.StatusPartiallyRefunded {
			return nil, orderdomain.ErrInvalidOrderStatus
		}
		return nil, orderdomain.ErrInvalidAmount
	}

	strategy, err := s.registry.Resolve(order.PaymentType)
	if err != nil {
		return nil, err
	}
	channelCfg, err := s.configs.Get(ctx, order.TenantID, order.PaymentSubType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	refund := &orderdomain.RefundOrder{
		RefundID:  ulid.Make().String(),
		OrderID:   order.OrderID,
		TenantID:  order.TenantID,
		Amount:    req.Amount,
		Currency:  order.Currency,
		Reason:    req.Reason,
		Status:    orderdomain.RefundStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertRefund(ctx, s.db, refund); err != nil {
		return nil, err
	}

	result, err := strategy.Refund(ctx, order, refund, channelCfg)
	if err != nil {
		refund.Status = orderdomain.RefundStatusFailed
		refund.UpdatedAt = s.clock.Now()
		if updateErr := s.repo.UpdateRefund(ctx, s.db, refund); updateErr != nil {
			s.log.Error("refund status update failed", zap.Error(updateErr))
		}
		if errors.Is(err, channeldomain.ErrRateLimited) {
			s.obsMetrics.RecordChannelThrottled(ctx, string(order.PaymentType))
		}
		return nil, err
	}

	now = s.clock.Now()
	if err := order.RequestRefund(refund.RefundID, refund.Amount, now); err != nil {
		return nil, err
	}
	if err := order.CompleteRefund(refund.RefundID, now); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, s.db, order); err != nil {
		return nil, err
	}

	refund.Status = orderdomain.RefundStatusSuccess
	refund.ThirdPartyRefundID = result.ThirdPartyRefundID
	refund.UpdatedAt = now
	if err := s.repo.UpdateRefund(ctx, s.db, refund); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordRefund(ctx, string(order.PaymentType))
	s.log.Info("refund completed",
		zap.String("order_id", order.OrderID),
		zap.String("refund_id", refund.RefundID),
		zap.Int64("amount", refund.Amount),
	)
	s.notifyAsync(order)

	return &RefundResponse{
		RefundID: refund.RefundID,
		OrderID:  order.OrderID,
		Status:   refund.Status,
		Amount:   refund.Amount,
	}, nil
}

// QueryRefund returns the refund row.
func (s *Service) QueryRefund(ctx context.Context, refundID string) (*orderdomain.RefundOrder, error) {
	return s.repo.FindRefund(ctx, s.db, refundID)
}

// advance applies the channel-reported status to a non-terminal order and
// persists. An unchanged status is a no-op.
func (s *Service) advance(ctx context.Context, order *orderdomain.PaymentOrder, reported orderdomain.OrderStatus, thirdPartyOrderID, failReason string) error {
	now := s.clock.Now()

	switch reported {
	case orderdomain.StatusSuccess, orderdomain.StatusRefunded, orderdomain.StatusPartiallyRefunded:
		// A channel-side refund state still means the payment leg completed.
		// Refund accounting stays with the refund flow.
		if order.Status == orderdomain.StatusPending {
			if err := order.InitiatePayment("", now); err != nil {
				return err
			}
		}
		if err := order.CompletePayment(thirdPartyOrderID, now); err != nil {
			return err
		}
	case orderdomain.StatusFailed:
		if order.Status == orderdomain.StatusPending {
			if err := order.InitiatePayment("", now); err != nil {
				return err
			}
		}
		if failReason == "" {
			failReason = "channel reported failure"
		}
		if err := order.FailPayment(failReason, now); err != nil {
			return err
		}
		if s.risk != nil {
			s.risk.RecordFailure(ctx, order.TenantID, order.ClientIP)
		}
	case orderdomain.StatusProcessing, orderdomain.StatusPending:
		return nil
	default:
		return fmt.Errorf("%w: channel reported %s", orderdomain.ErrInvalidEvent, reported)
	}

	if err := s.repo.Save(ctx, s.db, order); err != nil {
		return err
	}
	s.notifyAsync(order)
	return nil
}

func (s *Service) notifyAsync(order *orderdomain.PaymentOrder) {
	if s.notifier == nil {
		return
	}
	snapshot := *order
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.notifier.NotifyStatus(ctx, &snapshot)
	}()
}
