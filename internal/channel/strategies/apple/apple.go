package apple

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/pkg/httpclient"
	"go.uber.org/zap"
)

const (
	productionVerifyURL = "https://buy.itunes.apple.com/verifyReceipt"
	sandboxVerifyURL    = "https://sandbox.itunes.apple.com/verifyReceipt"

	statusOK                = 0
	statusSandboxReceipt    = 21007
	statusProductionReceipt = 21008
)

// Strategy implements Apple in-app purchases. The charge happens on the
// device; the gateway's job is receipt verification. Refunds go through
// Apple directly and are not supported here.
type Strategy struct {
	client *httpclient.Client
	log    *zap.Logger
}

func New(client *httpclient.Client, log *zap.Logger) *Strategy {
	return &Strategy{client: client, log: log.Named("channel.apple")}
}

func (s *Strategy) PaymentType() orderdomain.PaymentType {
	return orderdomain.PaymentTypeAppleIap
}

// CreateOrder records intent only. The client completes the purchase with
// StoreKit and posts the receipt to the callback endpoint.
func (s *Strategy) CreateOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.CreateOrderResult, error) {
	_ = ctx
	_ = cfg
	return &domain.CreateOrderResult{
		PaymentParams: map[string]string{
			"order_id": order.OrderID,
		},
	}, nil
}

func (s *Strategy) QueryOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.QueryResult, error) {
	_ = ctx
	_ = cfg

	// No server-side poll exists; the receipt callback is the only source
	// of truth. Report the current projection unchanged.
	return &domain.QueryResult{
		Status:            order.Status,
		ThirdPartyOrderID: order.ThirdPartyOrderID,
	}, nil
}

type callbackPayload struct {
	OrderID     string `json:"order_id"`
	ReceiptData string `json:"receipt_data"`
}

type verifyResponse struct {
	Status  int `json:"status"`
	Receipt struct {
		InApp []struct {
			TransactionID string `json:"transaction_id"`
			ProductID     string `json:"product_id"`
		} `json:"in_app"`
	} `json:"receipt"`
}

func (s *Strategy) HandleCallback(ctx context.Context, cfg *configdomain.ChannelConfig, payload []byte) (*domain.CallbackResult, error) {
	var req callbackPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if req.OrderID == "" || req.ReceiptData == "" {
		return nil, fmt.Errorf("%w: missing order_id or receipt_data", domain.ErrInvalidPayload)
	}

	verified, err := s.verify(ctx, cfg, req.ReceiptData, s.verifyURL(cfg))
	if err != nil {
		return nil, err
	}

	// A production key handed a sandbox receipt (and vice versa) retries
	// against the other environment, per Apple's documented flow.
	if verified.Status == statusSandboxReceipt {
		verified, err = s.verify(ctx, cfg, req.ReceiptData, sandboxVerifyURL)
		if err != nil {
			return nil, err
		}
	} else if verified.Status == statusProductionReceipt {
		verified, err = s.verify(ctx, cfg, req.ReceiptData, productionVerifyURL)
		if err != nil {
			return nil, err
		}
	}

	if verified.Status != statusOK {
		return nil, fmt.Errorf("%w: receipt status %d", domain.ErrInvalidSignature, verified.Status)
	}
	if len(verified.Receipt.InApp) == 0 {
		return nil, fmt.Errorf("%w: empty in_app receipts", domain.ErrInvalidPayload)
	}

	return &domain.CallbackResult{
		MerchantOrderID:   req.OrderID,
		ThirdPartyOrderID: verified.Receipt.InApp[0].TransactionID,
		Status:            orderdomain.StatusSuccess,
	}, nil
}

func (s *Strategy) Refund(ctx context.Context, order *orderdomain.PaymentOrder, refund *orderdomain.RefundOrder, cfg *configdomain.ChannelConfig) (*domain.RefundResult, error) {
	_ = ctx
	_ = order
	_ = refund
	_ = cfg
	return nil, fmt.Errorf("%w: apple iap refunds are handled by apple", domain.ErrUnsupportedOperation)
}

func (s *Strategy) AckSuccess() (string, []byte) {
	return "application/json", []byte(`{"status":0}`)
}

func (s *Strategy) AckFailure(reason string) (string, []byte) {
	body, _ := json.Marshal(map[string]interface{}{"status": 1, "reason": reason})
	return "application/json", body
}

func (s *Strategy) verify(ctx context.Context, cfg *configdomain.ChannelConfig, receiptData, endpoint string) (*verifyResponse, error) {
	body, err := json.Marshal(map[string]string{
		"receipt-data": receiptData,
		"password":     cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.PostJSON(ctx, endpoint, body)
	if err != nil {
		return nil, &domain.ChannelError{Channel: "apple", Code: "transport", Message: err.Error()}
	}
	if !resp.OK() {
		return nil, &domain.ChannelError{Channel: "apple", Code: strconv.Itoa(resp.StatusCode), Message: "unexpected status"}
	}

	var verified verifyResponse
	if err := json.Unmarshal(resp.Body, &verified); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return &verified, nil
}

func (s *Strategy) verifyURL(cfg *configdomain.ChannelConfig) string {
	if cfg.GatewayURL != "" {
		return strings.TrimSuffix(cfg.GatewayURL, "/")
	}
	if cfg.SandboxMode {
		return sandboxVerifyURL
	}
	return productionVerifyURL
}

var _ domain.Strategy = (*Strategy)(nil)
