package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	channeldomain "github.com/smallbiznis/payflow/internal/channel/domain"
	"github.com/smallbiznis/payflow/internal/channel/registry"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"github.com/smallbiznis/payflow/internal/clock"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	orderrepo "github.com/smallbiznis/payflow/internal/order/repository"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubProvider struct {
	cfg *configdomain.ChannelConfig
	err error
}

func (p *stubProvider) Get(ctx context.Context, tenantID int64, subTypeCode int32) (*configdomain.ChannelConfig, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.cfg, nil
}

func (p *stubProvider) Invalidate(tenantID int64, subTypeCode int32) {}

type fakeStrategy struct {
	paymentType orderdomain.PaymentType

	createErr      error
	callbackResult *channeldomain.CallbackResult
	callbackErr    error
	refundErr      error
	queryResult    *channeldomain.QueryResult
}

func (f *fakeStrategy) PaymentType() orderdomain.PaymentType { return f.paymentType }

func (f *fakeStrategy) CreateOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*channeldomain.CreateOrderResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &channeldomain.CreateOrderResult{PaymentURL: "https://pay.example/" + order.OrderID}, nil
}

func (f *fakeStrategy) QueryOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*channeldomain.QueryResult, error) {
	if f.queryResult != nil {
		return f.queryResult, nil
	}
	return &channeldomain.QueryResult{Status: orderdomain.StatusProcessing}, nil
}

func (f *fakeStrategy) HandleCallback(ctx context.Context, cfg *configdomain.ChannelConfig, payload []byte) (*channeldomain.CallbackResult, error) {
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return f.callbackResult, nil
}

func (f *fakeStrategy) Refund(ctx context.Context, order *orderdomain.PaymentOrder, refund *orderdomain.RefundOrder, cfg *configdomain.ChannelConfig) (*channeldomain.RefundResult, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &channeldomain.RefundResult{ThirdPartyRefundID: "tp-refund-1", Accepted: true}, nil
}

func (f *fakeStrategy) AckSuccess() (string, []byte) { return "text/plain", []byte("success") }

func (f *fakeStrategy) AckFailure(reason string) (string, []byte) {
	return "text/plain", []byte("fail")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&orderdomain.PaymentOrder{},
		&orderdomain.EventRecord{},
		&orderdomain.RefundOrder{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testEnv struct {
	svc      *paymentservice.Service
	strategy *fakeStrategy
	clk      *clock.FakeClock
	db       *gorm.DB
	repo     orderdomain.Repository
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	strategy := &fakeStrategy{paymentType: orderdomain.PaymentTypeWxSdk}
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	repo := orderrepo.Provide(node)

	svc := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     repo,
		Registry: registry.New(strategy),
		Configs: &stubProvider{cfg: &configdomain.ChannelConfig{
			TenantID:    1,
			SubTypeCode: orderdomain.PaymentTypeWxSdk.SubTypeCode(),
			AppID:       "wx123",
			Enabled:     true,
		}},
	})
	return &testEnv{svc: svc, strategy: strategy, clk: clk, db: db, repo: repo}
}

func createOrderRequest() paymentservice.CreateOrderRequest {
	return paymentservice.CreateOrderRequest{
		TenantID:        1,
		UserID:          42,
		MerchantOrderID: "merchant-1",
		PaymentType:     "WX_SDK",
		Amount:          10000,
		Currency:        "CNY",
		ProductName:     "gold pack",
		ClientIP:        "10.0.0.1",
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Status != orderdomain.StatusProcessing {
		t.Fatalf("status = %s, want %s", resp.Status, orderdomain.StatusProcessing)
	}
	if resp.PaymentURL == "" {
		t.Fatal("missing payment url")
	}

	events, err := env.svc.ListOrderEvents(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != orderdomain.EventOrderCreated || events[1].Kind != orderdomain.EventPaymentInitiated {
		t.Fatalf("events = %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("seq = %d, %d", events[0].Seq, events[1].Seq)
	}
}

func TestCreateOrderDuplicateMerchantOrder(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateOrder(ctx, createOrderRequest()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if !errors.Is(err, orderdomain.ErrOrderAlreadyExists) {
		t.Fatalf("err = %v, want ErrOrderAlreadyExists", err)
	}
}

func TestCreateOrderSameMerchantOrderAcrossTenants(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateOrder(ctx, createOrderRequest()); err != nil {
		t.Fatalf("tenant 1 create: %v", err)
	}

	// The merchant order id is only unique within a tenant.
	req := createOrderRequest()
	req.TenantID = 2
	if _, err := env.svc.CreateOrder(ctx, req); err != nil {
		t.Fatalf("tenant 2 create: %v", err)
	}
}

func TestCreateOrderChannelFailureLeavesPending(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.strategy.createErr = &channeldomain.ChannelError{Channel: "wechat", Code: "SYSTEMERROR"}

	_, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err == nil {
		t.Fatal("create succeeded despite channel failure")
	}

	order, err := env.repo.FindByTenantOrder(ctx, env.db, 1, "merchant-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if order.Status != orderdomain.StatusPending {
		t.Fatalf("status = %s, want %s", order.Status, orderdomain.StatusPending)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	req := createOrderRequest()
	req.Amount = 0
	if _, err := env.svc.CreateOrder(ctx, req); !errors.Is(err, orderdomain.ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v", err)
	}

	req = createOrderRequest()
	req.PaymentType = "PAYPAL"
	if _, err := env.svc.CreateOrder(ctx, req); !errors.Is(err, orderdomain.ErrInvalidPaymentType) {
		t.Fatalf("bad type err = %v", err)
	}

	req = createOrderRequest()
	req.Currency = "XXX"
	if _, err := env.svc.CreateOrder(ctx, req); !errors.Is(err, orderdomain.ErrInvalidCurrency) {
		t.Fatalf("bad currency err = %v", err)
	}

	req = createOrderRequest()
	req.TenantID = 0
	if _, err := env.svc.CreateOrder(ctx, req); !errors.Is(err, orderdomain.ErrInvalidTenant) {
		t.Fatalf("bad tenant err = %v", err)
	}
}

func TestCallbackCompletesOrder(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.strategy.callbackResult = &channeldomain.CallbackResult{
		MerchantOrderID:   resp.OrderID,
		ThirdPartyOrderID: "wx-tx-1",
		Status:            orderdomain.StatusSuccess,
	}
	ack, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, []byte("payload"))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if string(ack.Body) != "success" {
		t.Fatalf("ack = %q", ack.Body)
	}

	order, err := env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusSuccess {
		t.Fatalf("status = %s", order.Status)
	}
	if order.ThirdPartyOrderID != "wx-tx-1" {
		t.Fatalf("third party id = %q", order.ThirdPartyOrderID)
	}
}

func TestCallbackDuplicateIsAckedWithoutReplay(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.strategy.callbackResult = &channeldomain.CallbackResult{
		MerchantOrderID: resp.OrderID,
		Status:          orderdomain.StatusSuccess,
	}

	if _, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, nil); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	ack, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, nil)
	if err != nil {
		t.Fatalf("second callback: %v", err)
	}
	if string(ack.Body) != "success" {
		t.Fatalf("ack = %q", ack.Body)
	}

	events, err := env.svc.ListOrderEvents(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	// created, initiated, completed and nothing more.
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
}

func TestCallbackInvalidSignatureNotApplied(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.strategy.callbackErr = channeldomain.ErrInvalidSignature

	ack, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, nil)
	if !errors.Is(err, channeldomain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if string(ack.Body) != "fail" {
		t.Fatalf("ack = %q", ack.Body)
	}

	order, err := env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusProcessing {
		t.Fatalf("status advanced on bad signature: %s", order.Status)
	}
}

func TestCallbackUnknownOrderAcked(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	env.strategy.callbackResult = &channeldomain.CallbackResult{
		MerchantOrderID: "no-such-order",
		Status:          orderdomain.StatusSuccess,
	}
	ack, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, nil)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if string(ack.Body) != "success" {
		t.Fatalf("ack = %q", ack.Body)
	}
}

func TestRefundLifecycle(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.strategy.callbackResult = &channeldomain.CallbackResult{
		MerchantOrderID: resp.OrderID,
		Status:          orderdomain.StatusSuccess,
	}
	if _, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, nil); err != nil {
		t.Fatalf("callback: %v", err)
	}

	partial, err := env.svc.CreateRefund(ctx, paymentservice.RefundRequest{
		OrderID: resp.OrderID,
		Amount:  4000,
		Reason:  "customer request",
	})
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if partial.Status != orderdomain.RefundStatusSuccess {
		t.Fatalf("refund status = %s", partial.Status)
	}

	order, err := env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusPartiallyRefunded {
		t.Fatalf("order status = %s", order.Status)
	}
	if order.RefundedAmount != 4000 {
		t.Fatalf("refunded = %d", order.RefundedAmount)
	}

	// Overdraw rejected.
	_, err = env.svc.CreateRefund(ctx, paymentservice.RefundRequest{
		OrderID: resp.OrderID,
		Amount:  7000,
	})
	if !errors.Is(err, orderdomain.ErrInvalidAmount) {
		t.Fatalf("overdraw err = %v", err)
	}

	// Refund the remainder.
	full, err := env.svc.CreateRefund(ctx, paymentservice.RefundRequest{
		OrderID: resp.OrderID,
		Amount:  6000,
	})
	if err != nil {
		t.Fatalf("final refund: %v", err)
	}

	order, err = env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusRefunded {
		t.Fatalf("order status = %s", order.Status)
	}

	refund, err := env.svc.QueryRefund(ctx, full.RefundID)
	if err != nil {
		t.Fatalf("query refund: %v", err)
	}
	if refund.ThirdPartyRefundID != "tp-refund-1" {
		t.Fatalf("third party refund id = %q", refund.ThirdPartyRefundID)
	}
}

func TestRefundRejectedBeforeSuccess(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.svc.CreateRefund(ctx, paymentservice.RefundRequest{
		OrderID: resp.OrderID,
		Amount:  1000,
	})
	if !errors.Is(err, orderdomain.ErrInvalidOrderStatus) {
		t.Fatalf("err = %v, want ErrInvalidOrderStatus", err)
	}
}

func TestRefundChannelFailureKeepsOrderUntouched(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.strategy.callbackResult = &channeldomain.CallbackResult{
		MerchantOrderID: resp.OrderID,
		Status:          orderdomain.StatusSuccess,
	}
	if _, err := env.svc.HandleCallback(ctx, "WX_SDK", 1, nil); err != nil {
		t.Fatalf("callback: %v", err)
	}

	env.strategy.refundErr = &channeldomain.ChannelError{Channel: "wechat", Code: "SYSTEMERROR"}
	_, err = env.svc.CreateRefund(ctx, paymentservice.RefundRequest{
		OrderID: resp.OrderID,
		Amount:  1000,
	})
	if err == nil {
		t.Fatal("refund succeeded despite channel failure")
	}

	order, err := env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusSuccess || order.RefundedAmount != 0 {
		t.Fatalf("order mutated: status=%s refunded=%d", order.Status, order.RefundedAmount)
	}

	refunds, err := env.repo.ListRefunds(ctx, env.db, resp.OrderID)
	if err != nil {
		t.Fatalf("list refunds: %v", err)
	}
	if len(refunds) != 1 || refunds[0].Status != orderdomain.RefundStatusFailed {
		t.Fatalf("refunds = %+v", refunds)
	}
}

func pageWithSize(size int) pagination.Pagination {
	return pagination.Pagination{PageSize: size}
}

func pageWithToken(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}

func TestListOrdersPaginates(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := createOrderRequest()
		req.MerchantOrderID = req.MerchantOrderID + "-" + string(rune('a'+i))
		if _, err := env.svc.CreateOrder(ctx, req); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	resp, err := env.svc.ListOrders(ctx, paymentservice.ListOrdersRequest{
		Filter: orderdomain.ListOrderFilter{TenantID: 1},
		Page:   pageWithSize(2),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(resp.Orders))
	}
	if resp.PageInfo == nil || !resp.PageInfo.HasMore {
		t.Fatalf("page info = %+v, want more", resp.PageInfo)
	}

	next, err := env.svc.ListOrders(ctx, paymentservice.ListOrdersRequest{
		Filter: orderdomain.ListOrderFilter{TenantID: 1},
		Page:   pageWithToken(resp.PageInfo.NextPageToken, 10),
	})
	if err != nil {
		t.Fatalf("next page: %v", err)
	}
	if len(next.Orders) != 3 {
		t.Fatalf("got %d orders on second page, want 3", len(next.Orders))
	}
	for _, o := range next.Orders {
		for _, seen := range resp.Orders {
			if o.OrderID == seen.OrderID {
				t.Fatalf("order %s repeated across pages", o.OrderID)
			}
		}
	}
}

func TestQueryOrderReconcilesNonTerminal(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.strategy.queryResult = &channeldomain.QueryResult{
		Status:            orderdomain.StatusSuccess,
		ThirdPartyOrderID: "wx-tx-2",
	}
	order, err := env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusSuccess {
		t.Fatalf("status = %s", order.Status)
	}

	// Terminal orders do not hit the channel again.
	env.strategy.queryResult = &channeldomain.QueryResult{Status: orderdomain.StatusFailed}
	order, err = env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if order.Status != orderdomain.StatusSuccess {
		t.Fatalf("terminal order reconciled again: %s", order.Status)
	}
}

func TestQueryOrderRefundStateCompletesPayment(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, createOrderRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A channel already in a refund state proves the payment leg went
	// through; the local order closes as Success.
	env.strategy.queryResult = &channeldomain.QueryResult{
		Status:            orderdomain.StatusRefunded,
		ThirdPartyOrderID: "wx-tx-3",
	}
	order, err := env.svc.QueryOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if order.Status != orderdomain.StatusSuccess {
		t.Fatalf("status = %s, want %s", order.Status, orderdomain.StatusSuccess)
	}
	if order.ThirdPartyOrderID != "wx-tx-3" {
		t.Fatalf("third party id = %q", order.ThirdPartyOrderID)
	}
}
