package alipay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/url"
	"testing"

	"github.com/smallbiznis/payflow/internal/channel/domain"
	configdomain "github.com/smallbiznis/payflow/internal/channelconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"go.uber.org/zap"
)

func generateKeyPair(t *testing.T) (privateKeyPEM, publicKeyPEM string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privateKeyPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicKeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
	return privateKeyPEM, publicKeyPEM
}

func TestSignContentCanonicalForm(t *testing.T) {
	params := map[string]string{
		"b_key":     "2",
		"a_key":     "1",
		"sign":      "ignored",
		"sign_type": "RSA2",
		"empty":     "",
	}
	if got := signContent(params); got != "a_key=1&b_key=2" {
		t.Fatalf("content = %q", got)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	privateKey, publicKey := generateKeyPair(t)

	params := map[string]string{
		"out_trade_no": "ord1",
		"trade_status": "TRADE_SUCCESS",
	}
	signature, err := sign(params, privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	params["sign"] = signature

	if !verifySign(params, publicKey) {
		t.Fatal("valid signature rejected")
	}

	params["trade_status"] = "TRADE_CLOSED"
	if verifySign(params, publicKey) {
		t.Fatal("tampered payload verified")
	}
}

func TestSignRejectsGarbageKey(t *testing.T) {
	if _, err := sign(map[string]string{"a": "1"}, "not a pem"); err == nil {
		t.Fatal("garbage key accepted")
	}
}

func TestParseCallback(t *testing.T) {
	values := url.Values{}
	values.Set("out_trade_no", "ord1")
	values.Set("trade_status", "TRADE_SUCCESS")
	values.Set("trade_no", "ali-tx-7")

	params, err := parseCallback([]byte(values.Encode()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params["out_trade_no"] != "ord1" || params["trade_no"] != "ali-tx-7" {
		t.Fatalf("params = %+v", params)
	}
}

func TestHandleCallbackVerifiesSignature(t *testing.T) {
	privateKey, publicKey := generateKeyPair(t)
	s := NewSDK(nil, zap.NewNop())
	cfg := &configdomain.ChannelConfig{PublicKey: publicKey}

	params := map[string]string{
		"out_trade_no": "ord1",
		"trade_no":     "ali-tx-7",
		"trade_status": "TRADE_SUCCESS",
	}
	signature, err := sign(params, privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("sign", signature)

	result, err := s.HandleCallback(context.Background(), cfg, []byte(values.Encode()))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.Status != orderdomain.StatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if result.MerchantOrderID != "ord1" {
		t.Fatalf("order id = %q", result.MerchantOrderID)
	}

	values.Set("trade_status", "TRADE_CLOSED")
	if _, err := s.HandleCallback(context.Background(), cfg, []byte(values.Encode())); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestMapTradeStatus(t *testing.T) {
	cases := map[string]orderdomain.OrderStatus{
		"TRADE_SUCCESS":  orderdomain.StatusSuccess,
		"TRADE_FINISHED": orderdomain.StatusSuccess,
		"WAIT_BUYER_PAY": orderdomain.StatusProcessing,
		"TRADE_CLOSED":   orderdomain.StatusFailed,
		"SOMETHING_ELSE": orderdomain.StatusProcessing,
	}
	for raw, want := range cases {
		if got, _ := mapTradeStatus(raw); got != want {
			t.Fatalf("%s mapped to %s, want %s", raw, got, want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		100:   "1.00",
		1:     "0.01",
		12345: "123.45",
		10000: "100.00",
	}
	for minor, want := range cases {
		if got := formatAmount(minor); got != want {
			t.Fatalf("formatAmount(%d) = %q, want %q", minor, got, want)
		}
	}
}

func TestAckBodies(t *testing.T) {
	s := NewSDK(nil, zap.NewNop())

	contentType, body := s.AckSuccess()
	if contentType != "text/plain" || string(body) != "success" {
		t.Fatalf("ack = %q %q", contentType, body)
	}
	_, failBody := s.AckFailure("whatever")
	if string(failBody) != "fail" {
		t.Fatalf("fail ack = %q", failBody)
	}
}
