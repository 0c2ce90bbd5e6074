// README: Webhook endpoint tests: signature enforcement and event routing.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"levo/internal/gateway"
	"levo/internal/http/handlers"
	"levo/internal/modules/account"
	"levo/internal/modules/order"
	"levo/internal/modules/payment"
	"levo/internal/modules/pricing"
	"levo/internal/types"
)

func pointSP() types.Point  { return types.Point{Lat: -23.5614, Lng: -46.6559} }
func pointSP2() types.Point { return types.Point{Lat: -23.6008, Lng: -46.6404} }

const webhookSecret = "whsec_test"

func buildWebhookRouter() (*gin.Engine, *payment.MemStore, *order.Service) {
	gin.SetMode(gin.TestMode)
	payments := payment.NewMemStore()
	orders := order.NewService(order.NewMemStore(), pricing.NewService(nil, pricing.DefaultFeePercent), nil)
	rec := payment.NewReconciler(payments, account.NewMemStore(), orders, nil)
	r := gin.New()
	h := handlers.NewWebhookHandler(webhookSecret, rec)
	r.POST("/webhooks/gateway", h.Handle)
	return r, payments, orders
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Gateway-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_MissingSignature(t *testing.T) {
	r, _, _ := buildWebhookRouter()
	w := postWebhook(r, []byte(`{"id":"evt_1","kind":"payment.confirmed"}`), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestWebhook_WrongSignature(t *testing.T) {
	r, _, _ := buildWebhookRouter()
	body := []byte(`{"id":"evt_1","kind":"payment.confirmed"}`)
	sig := gateway.Sign("some-other-secret", body)
	w := postWebhook(r, body, sig)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestWebhook_TamperedBody(t *testing.T) {
	r, _, _ := buildWebhookRouter()
	sig := gateway.Sign(webhookSecret, []byte(`{"id":"evt_1","kind":"payment.confirmed"}`))
	w := postWebhook(r, []byte(`{"id":"evt_2","kind":"payment.confirmed"}`), sig)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestWebhook_MalformedEvent(t *testing.T) {
	r, _, _ := buildWebhookRouter()
	body := []byte(`{"kind":""}`)
	w := postWebhook(r, body, gateway.Sign(webhookSecret, body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestWebhook_UnknownKindAcknowledged(t *testing.T) {
	r, _, _ := buildWebhookRouter()
	body := []byte(`{"id":"evt_1","kind":"charge.updated"}`)
	w := postWebhook(r, body, gateway.Sign(webhookSecret, body))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestWebhook_PaymentConfirmedAppliesAndReplays(t *testing.T) {
	r, payments, orders := buildWebhookRouter()
	ctx := context.Background()

	shipper := order.Actor{ID: "store1", Role: order.RoleStore}
	o, err := orders.Create(ctx, order.CreateCommand{
		Actor: shipper,
		Origin: order.Address{Street: "Av. Paulista", Number: "1000", City: "São Paulo",
			State: "SP", PostalCode: "01310-100", Position: pointSP()},
		Destination: order.Address{Street: "R. Vergueiro", Number: "3185", City: "São Paulo",
			State: "SP", PostalCode: "04101-300", Position: pointSP2()},
		Tier:       pricing.TierStandard,
		DistanceKm: 10,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := payments.CreatePayment(ctx, &payment.Payment{
		ID: "pay_1", OrderID: o.ID, UserID: shipper.ID, IntentID: "pi_1",
		Amount: o.Fare, Currency: "BRL", Method: payment.MethodPix, Status: payment.StatusPending,
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	ev := map[string]any{
		"id": "evt_1", "kind": "payment.confirmed",
		"data": map[string]any{"intent_id": "pi_1", "charge_ref": "ch_1"},
	}
	body, _ := json.Marshal(ev)
	sig := gateway.Sign(webhookSecret, body)

	for i := 0; i < 2; i++ { // original delivery plus a replay
		w := postWebhook(r, body, sig)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	p, err := payments.GetPaymentByOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != payment.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", p.Status)
	}
	oo, err := orders.Find(ctx, o.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if oo.Status != order.StatusPendingAssignment {
		t.Errorf("expected pending_assignment, got %s", oo.Status)
	}
}
