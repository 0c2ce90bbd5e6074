// README: HTTP-level tests for order routes: auth gating, role checks, and
// error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"levo/internal/http/handlers"
	httpmiddleware "levo/internal/http/middleware"
	"levo/internal/infra"
	"levo/internal/modules/order"
	"levo/internal/modules/pricing"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

// buildOrderRouter wires a minimal engine with auth middleware, the order
// handler, and an in-memory order service.
func buildOrderRouter(verifier infra.TokenVerifier) (*gin.Engine, *order.Service) {
	gin.SetMode(gin.TestMode)
	svc := order.NewService(order.NewMemStore(), pricing.NewService(nil, pricing.DefaultFeePercent), nil)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier))
	h := handlers.NewOrderHandler(svc)
	r.POST("/api/orders", h.Create)
	r.GET("/api/orders", h.List)
	r.GET("/api/orders/:id", h.Get)
	r.POST("/api/orders/:id/transition", h.Transition)
	return r, svc
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sometoken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createOrderBody() map[string]any {
	return map[string]any{
		"origin": map[string]any{
			"street": "Av. Paulista", "number": "1000", "city": "São Paulo",
			"state": "SP", "postal_code": "01310-100", "lat": -23.5614, "lng": -46.6559,
		},
		"destination": map[string]any{
			"street": "R. Vergueiro", "number": "3185", "city": "São Paulo",
			"state": "SP", "postal_code": "04101-300", "lat": -23.6008, "lng": -46.6404,
		},
		"tier":        "standard",
		"distance_km": 10,
	}
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	r, _ := buildOrderRouter(&stubTokenVerifier{err: errors.New("no token")})
	w := doRequest(r, http.MethodPost, "/api/orders", createOrderBody())
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestCreateOrder_NoRoleClaim(t *testing.T) {
	r, _ := buildOrderRouter(makeVerifier("user1", ""))
	w := doRequest(r, http.MethodPost, "/api/orders", createOrderBody())
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestCreateOrder_CourierRoleRejected(t *testing.T) {
	r, _ := buildOrderRouter(makeVerifier("courier1", "courier"))
	w := doRequest(r, http.MethodPost, "/api/orders", createOrderBody())
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestCreateOrder_Created(t *testing.T) {
	r, _ := buildOrderRouter(makeVerifier("store1", "store"))
	w := doRequest(r, http.MethodPost, "/api/orders", createOrderBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp["status"] != "new" {
		t.Errorf("expected status new, got %v", resp["status"])
	}
	// 10 km standard prices at R$31.50 fare with a R$4.73 platform fee.
	if resp["fare"] != float64(3150) || resp["fee"] != float64(473) {
		t.Errorf("unexpected pricing: fare=%v fee=%v", resp["fare"], resp["fee"])
	}
	if resp["tracking_code"] == "" {
		t.Error("expected a tracking code")
	}
}

func TestCreateOrder_MissingAddress(t *testing.T) {
	r, _ := buildOrderRouter(makeVerifier("store1", "store"))
	body := createOrderBody()
	body["destination"] = map[string]any{}
	w := doRequest(r, http.MethodPost, "/api/orders", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	r, _ := buildOrderRouter(makeVerifier("store1", "store"))
	w := doRequest(r, http.MethodGet, "/api/orders/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetOrder_ForbiddenForStranger(t *testing.T) {
	verifier := makeVerifier("store1", "store")
	r, svc := buildOrderRouter(verifier)
	w := doRequest(r, http.MethodPost, "/api/orders", createOrderBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp["order_id"].(string)

	// Another shipper asking for the same order is refused.
	r2 := gin.New()
	r2.Use(httpmiddleware.Auth(makeVerifier("store2", "store")))
	h := handlers.NewOrderHandler(svc)
	r2.GET("/api/orders/:id", h.Get)
	w2 := doRequest(r2, http.MethodGet, "/api/orders/"+id, nil)
	if w2.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w2.Code)
	}
}

func TestTransition_InvalidTarget(t *testing.T) {
	verifier := makeVerifier("store1", "store")
	r, _ := buildOrderRouter(verifier)
	w := doRequest(r, http.MethodPost, "/api/orders", createOrderBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp["order_id"].(string)

	// delivered straight from new is not in the transition table.
	w2 := doRequest(r, http.MethodPost, "/api/orders/"+id+"/transition",
		map[string]any{"target": "delivered"})
	if w2.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestTransition_MissingTarget(t *testing.T) {
	r, _ := buildOrderRouter(makeVerifier("store1", "store"))
	w := doRequest(r, http.MethodPost, "/api/orders/abc/transition", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
