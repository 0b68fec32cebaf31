package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/notify"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"go.uber.org/zap"
)

func TestNotifyStatusPostsOrderSnapshot(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := notify.NewService(notify.Params{
		Config: config.Config{OutboundTimeout: 5 * time.Second},
		Log:    zap.NewNop(),
	})
	svc.NotifyStatus(context.Background(), &orderdomain.PaymentOrder{
		OrderID:         "ord1",
		MerchantOrderID: "merchant-1",
		TenantID:        1,
		Status:          orderdomain.StatusSuccess,
		Amount:          10000,
		Currency:        orderdomain.CurrencyCNY,
		NotifyURL:       srv.URL,
	})

	select {
	case body := <-received:
		if body["order_id"] != "ord1" {
			t.Fatalf("order_id = %v", body["order_id"])
		}
		if body["status"] != "SUCCESS" {
			t.Fatalf("status = %v", body["status"])
		}
		if body["amount"] != float64(10000) {
			t.Fatalf("amount = %v", body["amount"])
		}
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestNotifyStatusSkipsWithoutURL(t *testing.T) {
	svc := notify.NewService(notify.Params{
		Config: config.Config{},
		Log:    zap.NewNop(),
	})
	// No notify URL configured; must not panic or block.
	svc.NotifyStatus(context.Background(), &orderdomain.PaymentOrder{OrderID: "ord1"})
}
