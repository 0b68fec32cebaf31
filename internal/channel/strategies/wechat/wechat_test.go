package wechat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/pkg/httpclient"
	"go.uber.org/zap"
)

func TestSignIsDeterministicAndExcludesEmpty(t *testing.T) {
	params := map[string]string{
		"appid":        "wx123",
		"mch_id":       "m456",
		"out_trade_no": "ord1",
		"empty":        "",
	}
	first := sign(params, "secret")
	second := sign(params, "secret")
	if first != second {
		t.Fatalf("sign not deterministic: %s vs %s", first, second)
	}

	delete(params, "empty")
	if got := sign(params, "secret"); got != first {
		t.Fatalf("empty value changed signature: %s vs %s", got, first)
	}
	if got := sign(params, "other"); got == first {
		t.Fatal("different key produced same signature")
	}
}

func TestVerifySign(t *testing.T) {
	params := map[string]string{
		"appid":        "wx123",
		"out_trade_no": "ord1",
	}
	params["sign"] = sign(params, "secret")

	if !verifySign(params, "secret") {
		t.Fatal("valid signature rejected")
	}
	if verifySign(params, "wrong") {
		t.Fatal("signature verified with wrong key")
	}
	params["sign"] = ""
	if verifySign(params, "secret") {
		t.Fatal("empty signature accepted")
	}
}

func TestXMLRoundTrip(t *testing.T) {
	params := map[string]string{
		"return_code": "SUCCESS",
		"body":        "gold <pack>",
		"total_fee":   "100",
	}
	decoded, err := decodeXML(encodeXML(params))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for k, v := range params {
		if decoded[k] != v {
			t.Fatalf("%s = %q, want %q", k, decoded[k], v)
		}
	}
}

func TestDecodeXMLRejectsNested(t *testing.T) {
	if _, err := decodeXML([]byte("<xml><a><b>1</b></a></xml>")); err == nil {
		t.Fatal("nested xml accepted")
	}
	if _, err := decodeXML([]byte("")); err == nil {
		t.Fatal("empty payload accepted")
	}
}

func testConfig() *configdomain.ChannelConfig {
	return &configdomain.ChannelConfig{
		TenantID:    1,
		SubTypeCode: orderdomain.PaymentTypeWxSdk.SubTypeCode(),
		AppID:       "wx123",
		MerchantID:  "m456",
		APIKey:      "secret",
		Enabled:     true,
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	s := NewSDK(nil, zap.NewNop())
	cfg := testConfig()

	params := map[string]string{
		"return_code":    "SUCCESS",
		"result_code":    "SUCCESS",
		"out_trade_no":   "ord1",
		"transaction_id": "wx-tx-9",
	}
	params["sign"] = sign(params, cfg.APIKey)

	result, err := s.HandleCallback(context.Background(), cfg, encodeXML(params))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.MerchantOrderID != "ord1" {
		t.Fatalf("order id = %q", result.MerchantOrderID)
	}
	if result.Status != orderdomain.StatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if result.ThirdPartyOrderID != "wx-tx-9" {
		t.Fatalf("transaction id = %q", result.ThirdPartyOrderID)
	}
}

func TestHandleCallbackBadSignature(t *testing.T) {
	s := NewSDK(nil, zap.NewNop())
	cfg := testConfig()

	params := map[string]string{
		"return_code":  "SUCCESS",
		"result_code":  "SUCCESS",
		"out_trade_no": "ord1",
		"sign":         "DEADBEEF",
	}
	_, err := s.HandleCallback(context.Background(), cfg, encodeXML(params))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestHandleCallbackFailureResult(t *testing.T) {
	s := NewSDK(nil, zap.NewNop())
	cfg := testConfig()

	params := map[string]string{
		"return_code":  "SUCCESS",
		"result_code":  "FAIL",
		"out_trade_no": "ord1",
		"err_code_des": "balance too low",
	}
	params["sign"] = sign(params, cfg.APIKey)

	result, err := s.HandleCallback(context.Background(), cfg, encodeXML(params))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.Status != orderdomain.StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if result.FailReason != "balance too low" {
		t.Fatalf("fail reason = %q", result.FailReason)
	}
}

func TestAckBodies(t *testing.T) {
	s := NewSDK(nil, zap.NewNop())

	contentType, body := s.AckSuccess()
	if contentType != "application/xml" {
		t.Fatalf("content type = %q", contentType)
	}
	want := "<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>"
	if string(body) != want {
		t.Fatalf("ack body = %q", body)
	}

	_, failBody := s.AckFailure("")
	wantFail := "<xml><return_code><![CDATA[FAIL]]></return_code><return_msg><![CDATA[FAIL]]></return_msg></xml>"
	if string(failBody) != wantFail {
		t.Fatalf("fail ack body = %q", failBody)
	}
}

func TestCreateOrderMwebReturnsPaymentURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathUnifiedOrder {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write(encodeXML(map[string]string{
			"return_code": "SUCCESS",
			"result_code": "SUCCESS",
			"mweb_url":    "https://wx.example/pay?x=1",
		}))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxRetries: 0}, zap.NewNop())
	s := NewH5(client, zap.NewNop())
	cfg := testConfig()
	cfg.GatewayURL = srv.URL

	order := &orderdomain.PaymentOrder{
		OrderID:     "ord1",
		Amount:      100,
		Currency:    orderdomain.CurrencyCNY,
		ProductName: "gold pack",
	}
	result, err := s.CreateOrder(context.Background(), order, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.PaymentURL != "https://wx.example/pay?x=1" {
		t.Fatalf("payment url = %q", result.PaymentURL)
	}
}

func TestCreateOrderSDKSignsClientParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encodeXML(map[string]string{
			"return_code": "SUCCESS",
			"result_code": "SUCCESS",
			"prepay_id":   "prepay-1",
		}))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxRetries: 0}, zap.NewNop())
	s := NewSDK(client, zap.NewNop())
	cfg := testConfig()
	cfg.GatewayURL = srv.URL

	order := &orderdomain.PaymentOrder{OrderID: "ord1", Amount: 100, Currency: orderdomain.CurrencyCNY}
	result, err := s.CreateOrder(context.Background(), order, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.PaymentParams["prepayid"] != "prepay-1" {
		t.Fatalf("prepayid = %q", result.PaymentParams["prepayid"])
	}
	if result.PaymentParams["timestamp"] == "" {
		t.Fatal("missing timestamp")
	}
	if !verifySign(result.PaymentParams, cfg.APIKey) {
		t.Fatal("client params not signed")
	}
}

func TestPostGatewayErrorBecomesChannelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(encodeXML(map[string]string{
			"return_code": "FAIL",
			"return_msg":  "appid not found",
		}))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxRetries: 0}, zap.NewNop())
	s := NewSDK(client, zap.NewNop())
	cfg := testConfig()
	cfg.GatewayURL = srv.URL

	order := &orderdomain.PaymentOrder{OrderID: "ord1", Amount: 100, Currency: orderdomain.CurrencyCNY}
	_, err := s.CreateOrder(context.Background(), order, cfg)
	var chErr *domain.ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("err = %v, want ChannelError", err)
	}
	if chErr.Message != "appid not found" {
		t.Fatalf("message = %q", chErr.Message)
	}
}
