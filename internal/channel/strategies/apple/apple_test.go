package apple

import (
	"context"
	"encoding/json"
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

func newTestStrategy(t *testing.T, handler http.HandlerFunc) (*Strategy, *configdomain.ChannelConfig, func()) {
	t.Helper()

	srv := httptest.NewServer(handler)
	client := httpclient.New(httpclient.Config{MaxRetries: 0}, zap.NewNop())
	cfg := &configdomain.ChannelConfig{
		APIKey:     "shared-secret",
		GatewayURL: srv.URL,
		Enabled:    true,
	}
	return New(client, zap.NewNop()), cfg, srv.Close
}

func TestCreateOrderReturnsOrderReference(t *testing.T) {
	s := New(nil, zap.NewNop())
	order := &orderdomain.PaymentOrder{OrderID: "ord1"}

	result, err := s.CreateOrder(context.Background(), order, &configdomain.ChannelConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.PaymentParams["order_id"] != "ord1" {
		t.Fatalf("params = %+v", result.PaymentParams)
	}
}

func TestQueryOrderReturnsProjection(t *testing.T) {
	s := New(nil, zap.NewNop())
	order := &orderdomain.PaymentOrder{
		OrderID:           "ord1",
		Status:            orderdomain.StatusProcessing,
		ThirdPartyOrderID: "tx-1",
	}

	result, err := s.QueryOrder(context.Background(), order, &configdomain.ChannelConfig{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Status != orderdomain.StatusProcessing || result.ThirdPartyOrderID != "tx-1" {
		t.Fatalf("result = %+v", result)
	}
}

func TestHandleCallbackVerifiesReceipt(t *testing.T) {
	var gotPassword string
	s, cfg, closeSrv := newTestStrategy(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotPassword = req["password"]
		json.NewEncoder(w).Encode(map[string]any{
			"status": 0,
			"receipt": map[string]any{
				"in_app": []map[string]string{
					{"transaction_id": "apple-tx-3", "product_id": "gold.pack"},
				},
			},
		})
	})
	defer closeSrv()

	payload, _ := json.Marshal(map[string]string{
		"order_id":     "ord1",
		"receipt_data": "base64-receipt",
	})
	result, err := s.HandleCallback(context.Background(), cfg, payload)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if result.MerchantOrderID != "ord1" {
		t.Fatalf("order id = %q", result.MerchantOrderID)
	}
	if result.ThirdPartyOrderID != "apple-tx-3" {
		t.Fatalf("transaction id = %q", result.ThirdPartyOrderID)
	}
	if result.Status != orderdomain.StatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if gotPassword != "shared-secret" {
		t.Fatalf("password = %q", gotPassword)
	}
}

func TestHandleCallbackRejectsBadReceipt(t *testing.T) {
	s, cfg, closeSrv := newTestStrategy(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": 21002})
	})
	defer closeSrv()

	payload, _ := json.Marshal(map[string]string{
		"order_id":     "ord1",
		"receipt_data": "garbage",
	})
	_, err := s.HandleCallback(context.Background(), cfg, payload)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestHandleCallbackRejectsMissingFields(t *testing.T) {
	s := New(nil, zap.NewNop())

	_, err := s.HandleCallback(context.Background(), &configdomain.ChannelConfig{}, []byte(`{"order_id":"ord1"}`))
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	_, err = s.HandleCallback(context.Background(), &configdomain.ChannelConfig{}, []byte("not json"))
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestRefundUnsupported(t *testing.T) {
	s := New(nil, zap.NewNop())

	_, err := s.Refund(context.Background(), &orderdomain.PaymentOrder{}, &orderdomain.RefundOrder{}, &configdomain.ChannelConfig{})
	if !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Fatalf("err = %v, want ErrUnsupportedOperation", err)
	}
}

func TestAckBodies(t *testing.T) {
	s := New(nil, zap.NewNop())

	contentType, body := s.AckSuccess()
	if contentType != "application/json" || string(body) != `{"status":0}` {
		t.Fatalf("ack = %q %q", contentType, body)
	}
}
