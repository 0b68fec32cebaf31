package wechat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/pkg/httpclient"
	"go.uber.org/zap"
)

const (
	defaultGateway   = "https://api.mch.weixin.qq.com"
	pathUnifiedOrder = "/pay/unifiedorder"
	pathOrderQuery   = "/pay/orderquery"
	pathRefund       = "/secapi/pay/refund"

	tradeTypeApp  = "APP"
	tradeTypeMweb = "MWEB"
	tradeTypeJS   = "JSAPI"
)

// Strategy implements the WeChat Pay channel. The SDK, H5 and JSAPI payment
// types share query, callback and refund handling and differ only in the
// trade type sent on create.
type Strategy struct {
	paymentType orderdomain.PaymentType
	tradeType   string
	client      *httpclient.Client
	log         *zap.Logger
}

func NewSDK(client *httpclient.Client, log *zap.Logger) *Strategy {
	return newStrategy(orderdomain.PaymentTypeWxSdk, tradeTypeApp, client, log)
}

func NewH5(client *httpclient.Client, log *zap.Logger) *Strategy {
	return newStrategy(orderdomain.PaymentTypeWxH5, tradeTypeMweb, client, log)
}

func NewJS(client *httpclient.Client, log *zap.Logger) *Strategy {
	return newStrategy(orderdomain.PaymentTypeWxJs, tradeTypeJS, client, log)
}

func newStrategy(pt orderdomain.PaymentType, tradeType string, client *httpclient.Client, log *zap.Logger) *Strategy {
	return &Strategy{
		paymentType: pt,
		tradeType:   tradeType,
		client:      client,
		log:         log.Named("channel.wechat"),
	}
}

func (s *Strategy) PaymentType() orderdomain.PaymentType {
	return s.paymentType
}

func (s *Strategy) CreateOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.CreateOrderResult, error) {
	params := map[string]string{
		"appid":            cfg.AppID,
		"mch_id":           cfg.MerchantID,
		"nonce_str":        nonce(),
		"body":             order.ProductName,
		"out_trade_no":     order.OrderID,
		"total_fee":        strconv.FormatInt(order.Amount, 10),
		"fee_type":         string(order.Currency),
		"spbill_create_ip": order.ClientIP,
		"notify_url":       cfg.NotifyURL,
		"trade_type":       s.tradeType,
	}
	params["sign"] = sign(params, cfg.APIKey)

	resp, err := s.post(ctx, cfg, pathUnifiedOrder, params)
	if err != nil {
		return nil, err
	}

	switch s.tradeType {
	case tradeTypeMweb:
		url := resp["mweb_url"]
		if url == "" {
			return nil, fmt.Errorf("%w: missing mweb_url", domain.ErrInvalidPayload)
		}
		return &domain.CreateOrderResult{PaymentURL: url}, nil
	default:
		prepayID := resp["prepay_id"]
		if prepayID == "" {
			return nil, fmt.Errorf("%w: missing prepay_id", domain.ErrInvalidPayload)
		}
		clientParams := map[string]string{
			"appid":     cfg.AppID,
			"partnerid": cfg.MerchantID,
			"prepayid":  prepayID,
			"package":   "Sign=WXPay",
			"noncestr":  nonce(),
			"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		}
		clientParams["sign"] = sign(clientParams, cfg.APIKey)
		return &domain.CreateOrderResult{PaymentParams: clientParams}, nil
	}
}

func (s *Strategy) QueryOrder(ctx context.Context, order *orderdomain.PaymentOrder, cfg *configdomain.ChannelConfig) (*domain.QueryResult, error) {
	params := map[string]string{
		"appid":        cfg.AppID,
		"mch_id":       cfg.MerchantID,
		"nonce_str":    nonce(),
		"out_trade_no": order.OrderID,
	}
	params["sign"] = sign(params, cfg.APIKey)

	resp, err := s.post(ctx, cfg, pathOrderQuery, params)
	if err != nil {
		return nil, err
	}

	status, reason := mapTradeState(resp["trade_state"])
	return &domain.QueryResult{
		Status:            status,
		ThirdPartyOrderID: resp["transaction_id"],
		FailReason:        reason,
	}, nil
}

func (s *Strategy) HandleCallback(ctx context.Context, cfg *configdomain.ChannelConfig, payload []byte) (*domain.CallbackResult, error) {
	_ = ctx

	params, err := decodeXML(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if !verifySign(params, cfg.APIKey) {
		return nil, domain.ErrInvalidSignature
	}
	if params["return_code"] != "SUCCESS" {
		return nil, fmt.Errorf("%w: return_code %s", domain.ErrInvalidPayload, params["return_code"])
	}
	orderID := params["out_trade_no"]
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing out_trade_no", domain.ErrInvalidPayload)
	}

	result := &domain.CallbackResult{
		MerchantOrderID:   orderID,
		ThirdPartyOrderID: params["transaction_id"],
		Raw:               params,
	}
	if params["result_code"] == "SUCCESS" {
		result.Status = orderdomain.StatusSuccess
	} else {
		result.Status = orderdomain.StatusFailed
		result.FailReason = params["err_code_des"]
		if result.FailReason == "" {
			result.FailReason = params["err_code"]
		}
	}
	return result, nil
}

func (s *Strategy) Refund(ctx context.Context, order *orderdomain.PaymentOrder, refund *orderdomain.RefundOrder, cfg *configdomain.ChannelConfig) (*domain.RefundResult, error) {
	params := map[string]string{
		"appid":         cfg.AppID,
		"mch_id":        cfg.MerchantID,
		"nonce_str":     nonce(),
		"out_trade_no":  order.OrderID,
		"out_refund_no": refund.RefundID,
		"total_fee":     strconv.FormatInt(order.Amount, 10),
		"refund_fee":    strconv.FormatInt(refund.Amount, 10),
	}
	params["sign"] = sign(params, cfg.APIKey)

	resp, err := s.post(ctx, cfg, pathRefund, params)
	if err != nil {
		return nil, err
	}
	return &domain.RefundResult{
		ThirdPartyRefundID: resp["refund_id"],
		Accepted:           true,
	}, nil
}

func (s *Strategy) AckSuccess() (string, []byte) {
	return "application/xml", []byte("<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>")
}

func (s *Strategy) AckFailure(reason string) (string, []byte) {
	if reason == "" {
		reason = "FAIL"
	}
	body := fmt.Sprintf("<xml><return_code><![CDATA[FAIL]]></return_code><return_msg><![CDATA[%s]]></return_msg></xml>", reason)
	return "application/xml", []byte(body)
}

func (s *Strategy) post(ctx context.Context, cfg *configdomain.ChannelConfig, path string, params map[string]string) (map[string]string, error) {
	resp, err := s.client.PostXML(ctx, s.gateway(cfg)+path, encodeXML(params))
	if err != nil {
		return nil, &domain.ChannelError{Channel: "wechat", Code: "transport", Message: err.Error()}
	}
	if !resp.OK() {
		return nil, &domain.ChannelError{Channel: "wechat", Code: strconv.Itoa(resp.StatusCode), Message: "unexpected status"}
	}

	fields, err := decodeXML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if fields["return_code"] != "SUCCESS" {
		return nil, &domain.ChannelError{Channel: "wechat", Code: fields["return_code"], Message: fields["return_msg"]}
	}
	if code, ok := fields["result_code"]; ok && code != "SUCCESS" {
		return nil, &domain.ChannelError{Channel: "wechat", Code: fields["err_code"], Message: fields["err_code_des"]}
	}
	return fields, nil
}

func (s *Strategy) gateway(cfg *configdomain.ChannelConfig) string {
	if cfg.GatewayURL != "" {
		return strings.TrimSuffix(cfg.GatewayURL, "/")
	}
	return defaultGateway
}

func mapTradeState(state string) (orderdomain.OrderStatus, string) {
	switch state {
	case "SUCCESS":
		return orderdomain.StatusSuccess, ""
	case "REFUND":
		return orderdomain.StatusRefunded, ""
	case "NOTPAY", "USERPAYING":
		return orderdomain.StatusProcessing, ""
	case "CLOSED", "REVOKED", "PAYERROR":
		return orderdomain.StatusFailed, "trade_state " + state
	default:
		return orderdomain.StatusProcessing, ""
	}
}

func nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var _ domain.Strategy = (*Strategy)(nil)
