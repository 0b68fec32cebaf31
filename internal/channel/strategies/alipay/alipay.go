package alipay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/pkg/httpclient"
	"go.uber.org/zap"
)

const (
	defaultGateway = "https://openapi.alipay.com/gateway.do"

	methodAppPay = "alipay.trade.app.pay"
	methodWapPay = "alipay.trade.wap.pay"
	methodQuery  = "alipay.trade.query"
	methodRefund = "alipay.trade.refund"
)

// Strategy implements the Alipay channel. SDK and H5 share query, callback
// and refund handling; create differs in method and delivery (signed
// parameter string for the SDK, redirect URL for H5).
type Strategy struct {
	paymentType orderdomain.PaymentType
	method      string
	client      *httpclient.Client
	log         *zap.Logger
}

func NewSDK(client *httpclient.Client, log *zap.Logger) *Strategy {
	return newStrategy(orderdomain.PaymentTypeZfbSdk, methodAppPay, client, log)
}

func NewH5(client *httpclient.Client, log *zap.Logger) *Strategy {
	return newStrategy(orderdomain.PaymentTypeZfbH5, methodWapPay, client, log)
}

func newStrategy(pt orderdomain.PaymentType, method string, client *httpclient.Client, log *zap.Logger) *Strategy {
	return &Strategy{
		paymentType: pt,
		method:      method,
		client:      client,
		log:         log.Named("channel.alipay"),
	}
}

func (s *Strategy) PaymentType() orderdomain.PaymentType {
	return s.paymentType
}

func (s *Strategy) CreateOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.CreateOrderResult, error) {
	_ = ctx

	bizContent, err := json.Marshal(map[string]string{
		"out_trade_no": order.OrderID,
		"total_amount": formatAmount(order.Amount),
		"subject":      order.ProductName,
		"body":         order.ProductDesc,
	})
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"app_id":      cfg.AppID,
		"method":      s.method,
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().UTC().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"notify_url":  cfg.NotifyURL,
		"biz_content": string(bizContent),
	}
	signature, err := sign(params, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	params["sign"] = signature

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	// The signed request is handed to the client: the SDK consumes the raw
	// parameter string, H5 redirects to the gateway with it as the query.
	if s.method == methodWapPay {
		return &domain.CreateOrderResult{
			PaymentURL: s.gateway(cfg) + "?" + values.Encode(),
		}, nil
	}
	return &domain.CreateOrderResult{
		PaymentParams: map[string]string{"order_string": values.Encode()},
	}, nil
}

func (s *Strategy) QueryOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.QueryResult, error) {
	resp, err := s.call(ctx, cfg, methodQuery, map[string]string{
		"out_trade_no": order.OrderID,
	}, "alipay_trade_query_response")
	if err != nil {
		return nil, err
	}

	status, reason := mapTradeStatus(resp["trade_status"])
	return &domain.QueryResult{
		Status:            status,
		ThirdPartyOrderID: resp["trade_no"],
		FailReason:        reason,
	}, nil
}

func (s *Strategy) HandleCallback(ctx context.Context, cfg *configdomain.ChannelConfig, payload []byte) (*domain.CallbackResult, error) {
	_ = ctx

	params, err := parseCallback(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if !verifySign(params, cfg.PublicKey) {
		return nil, domain.ErrInvalidSignature
	}
	orderID := params["out_trade_no"]
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing out_trade_no", domain.ErrInvalidPayload)
	}

	status, reason := mapTradeStatus(params["trade_status"])
	return &domain.CallbackResult{
		MerchantOrderID:   orderID,
		ThirdPartyOrderID: params["trade_no"],
		Status:            status,
		FailReason:        reason,
		Raw:               params,
	}, nil
}

func (s *Strategy) Refund(ctx context.Context, order *orderdomain.PaymentOrder, refund *orderdomain.RefundOrder, cfg *configdomain.ChannelConfig) (*domain.RefundResult, error) {
	resp, err := s.call(ctx, cfg, methodRefund, map[string]string{
		"out_trade_no":   order.OrderID,
		"out_request_no": refund.RefundID,
		"refund_amount":  formatAmount(refund.Amount),
		"refund_reason":  refund.Reason,
	}, "alipay_trade_refund_response")
	if err != nil {
		return nil, err
	}
	return &domain.RefundResult{
		ThirdPartyRefundID: resp["trade_no"],
		Accepted:           true,
	}, nil
}

func (s *Strategy) AckSuccess() (string, []byte) {
	return "text/plain", []byte("success")
}

func (s *Strategy) AckFailure(reason string) (string, []byte) {
	_ = reason
	return "text/plain", []byte("fail")
}

func (s *Strategy) call(ctx context.Context, cfg *configdomain.ChannelConfig, method string, bizFields map[string]string, responseKey string) (map[string]string, error) {
	bizContent, err := json.Marshal(bizFields)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"app_id":      cfg.AppID,
		"method":      method,
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().UTC().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"biz_content": string(bizContent),
	}
	signature, err := sign(params, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	params["sign"] = signature

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	resp, err := s.client.PostForm(ctx, s.gateway(cfg), values)
	if err != nil {
		return nil, &domain.ChannelError{Channel: "alipay", Code: "transport", Message: err.Error()}
	}
	if !resp.OK() {
		return nil, &domain.ChannelError{Channel: "alipay", Code: strconv.Itoa(resp.StatusCode), Message: "unexpected status"}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	raw, ok := envelope[responseKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidPayload, responseKey)
	}

	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if code := fields["code"]; code != "10000" {
		return nil, &domain.ChannelError{Channel: "alipay", Code: code, Message: fields["sub_msg"]}
	}
	return fields, nil
}

func (s *Strategy) gateway(cfg *configdomain.ChannelConfig) string {
	if cfg.GatewayURL != "" {
		return strings.TrimSuffix(cfg.GatewayURL, "/")
	}
	return defaultGateway
}

func mapTradeStatus(status string) (orderdomain.OrderStatus, string) {
	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return orderdomain.StatusSuccess, ""
	case "WAIT_BUYER_PAY":
		return orderdomain.StatusProcessing, ""
	case "TRADE_CLOSED":
		return orderdomain.StatusFailed, "trade_status TRADE_CLOSED"
	default:
		return orderdomain.StatusProcessing, ""
	}
}

// formatAmount renders minor units as the decimal string the gateway expects.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

var _ domain.Strategy = (*Strategy)(nil)
