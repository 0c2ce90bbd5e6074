// README: coordinator tests against in-memory stores and a scripted gateway.
package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levo/internal/gateway"
	"levo/internal/modules/account"
	"levo/internal/modules/order"
	"levo/internal/modules/pricing"
	"levo/internal/types"
)

// stubGateway scripts gateway responses and counts calls.
type stubGateway struct {
	mu sync.Mutex

	intents map[string]*gateway.Intent

	customerCalls int
	intentCalls   int
	transferCalls int

	failCreateIntent bool
	failGetIntent    bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{intents: map[string]*gateway.Intent{}}
}

func (g *stubGateway) CreateCustomer(_ context.Context, req gateway.CustomerRequest) (*gateway.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customerCalls++
	return &gateway.Customer{ID: "cus_" + req.ExternalRef}, nil
}

func (g *stubGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreateIntent {
		return nil, fmt.Errorf("intent: %w", gateway.ErrUnavailable)
	}
	g.intentCalls++
	in := &gateway.Intent{
		ID:     fmt.Sprintf("pi_%d", g.intentCalls),
		Status: gateway.IntentPending,
	}
	if req.Method == string(MethodPix) {
		qr := "data:image/png;base64,stub"
		in.Pix = &gateway.PixInfo{QRCode: qr, CopyPaste: "00020126stubpixcode", ExpiresAt: req.ExpiresAt}
	}
	g.intents[in.ID] = in
	return in, nil
}

func (g *stubGateway) GetIntent(_ context.Context, id string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failGetIntent {
		return nil, fmt.Errorf("intent %s: %w", id, gateway.ErrUnavailable)
	}
	in, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("intent %s: not found", id)
	}
	cp := *in
	return &cp, nil
}

func (g *stubGateway) CreateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transferCalls++
	return &gateway.Transfer{ID: fmt.Sprintf("tr_%d", g.transferCalls), Status: "pending"}, nil
}

func (g *stubGateway) succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in := g.intents[intentID]
	in.Status = gateway.IntentSucceeded
	in.ChargeRef = "ch_" + intentID
}

func (g *stubGateway) rotatePix(intentID, qr, copyPaste string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in := g.intents[intentID]
	in.Pix = &gateway.PixInfo{QRCode: qr, CopyPaste: copyPaste, ExpiresAt: in.Pix.ExpiresAt}
}

func (g *stubGateway) cancel(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = gateway.IntentCancelled
}

// fixture wires the payment module against in-memory dependencies.
type fixture struct {
	payments *MemStore
	accounts *account.MemStore
	orders   *order.Service
	gw       *stubGateway
	svc      *Service
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	payments := NewMemStore()
	accounts := account.NewMemStore()
	orders := order.NewService(order.NewMemStore(), pricing.NewService(nil, pricing.DefaultFeePercent), nil)
	gw := newStubGateway()
	return &fixture{
		payments: payments,
		accounts: accounts,
		orders:   orders,
		gw:       gw,
		svc:      NewService(payments, accounts, gw, orders, nil),
		rec:      NewReconciler(payments, accounts, orders, nil),
	}
}

var (
	shipper = order.Actor{ID: "store-1", Role: order.RoleStore}
	courier = order.Actor{ID: "courier-1", Role: order.RoleCourier}
	admin   = order.Actor{ID: "admin-1", Role: order.RoleAdmin}
)

func (f *fixture) createOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), order.CreateCommand{
		Actor: shipper,
		Origin: order.Address{
			Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP",
			PostalCode: "01310-100", Position: types.Point{Lat: -23.5614, Lng: -46.6559},
		},
		Destination: order.Address{
			Street: "R. Vergueiro", Number: "3185", City: "São Paulo", State: "SP",
			PostalCode: "04101-300", Position: types.Point{Lat: -23.6008, Lng: -46.6404},
		},
		Tier:       pricing.TierStandard,
		DistanceKm: 10,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) requestPix(t *testing.T, orderID types.ID) *Payment {
	t.Helper()
	p, err := f.svc.RequestPayment(context.Background(), RequestCommand{
		OrderID: orderID, Method: MethodPix, Actor: shipper,
	})
	require.NoError(t, err)
	return p
}

func TestRequestPaymentCreatesIntent(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	p := f.requestPix(t, o.ID)

	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, shipper.ID, p.UserID)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, o.Fare, p.Amount)
	assert.Equal(t, "BRL", p.Currency)
	require.NotNil(t, p.Pix.QRCode)

	acc, err := f.accounts.Get(context.Background(), shipper.ID)
	require.NoError(t, err)
	require.NotNil(t, acc.GatewayCustomerID)
	assert.Equal(t, "cus_store-1", *acc.GatewayCustomerID)
}

func TestRequestPaymentIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	first := f.requestPix(t, o.ID)
	second := f.requestPix(t, o.ID)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.gw.intentCalls)
	// The cached customer ref is reused too.
	assert.Equal(t, 1, f.gw.customerCalls)
}

func TestRequestPaymentForbidsNonParties(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	other := order.Actor{ID: "store-2", Role: order.RoleStore}
	_, err := f.svc.RequestPayment(context.Background(), RequestCommand{
		OrderID: o.ID, Method: MethodPix, Actor: other,
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.RequestPayment(context.Background(), RequestCommand{
		OrderID: o.ID, Method: MethodPix, Actor: courier,
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRequestPaymentIntermediaryCanPay(t *testing.T) {
	f := newFixture(t)
	broker := order.Actor{ID: "broker-1", Role: order.RoleIntermediary}
	brokerID := broker.ID
	o, err := f.orders.Create(context.Background(), order.CreateCommand{
		Actor:        shipper,
		Intermediary: &brokerID,
		Origin: order.Address{
			Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP",
			PostalCode: "01310-100", Position: types.Point{Lat: -23.5614, Lng: -46.6559},
		},
		Destination: order.Address{
			Street: "R. Vergueiro", Number: "3185", City: "São Paulo", State: "SP",
			PostalCode: "04101-300", Position: types.Point{Lat: -23.6008, Lng: -46.6404},
		},
		Tier:       pricing.TierStandard,
		DistanceKm: 10,
	})
	require.NoError(t, err)

	p, err := f.svc.RequestPayment(context.Background(), RequestCommand{
		OrderID: o.ID, Method: MethodPix, Actor: broker,
	})
	require.NoError(t, err)
	assert.Equal(t, broker.ID, p.UserID)
}

func TestRequestPaymentBadMethod(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	_, err := f.svc.RequestPayment(context.Background(), RequestCommand{
		OrderID: o.ID, Method: Method("cash"), Actor: shipper,
	})
	assert.ErrorIs(t, err, ErrBadMethod)
}

func TestRequestPaymentGatewayDownFailsClosed(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	f.gw.failCreateIntent = true

	_, err := f.svc.RequestPayment(context.Background(), RequestCommand{
		OrderID: o.ID, Method: MethodPix, Actor: shipper,
	})
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	// No phantom payment row may exist for a charge that was never made.
	_, err = f.payments.GetPaymentByOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestGetPixDetailsOwnership(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	f.requestPix(t, o.ID)

	pix, err := f.svc.GetPixDetails(context.Background(), o.ID, shipper)
	require.NoError(t, err)
	require.NotNil(t, pix.CopyPaste)

	// Another user asking about the same order learns nothing, not even
	// that a payment exists.
	_, err = f.svc.GetPixDetails(context.Background(), o.ID, courier)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestGetPixDetailsRefreshesFromGateway(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	p := f.requestPix(t, o.ID)

	// The gateway rotates expired QR codes; a read picks up the new one.
	f.gw.rotatePix(p.IntentID, "data:image/png;base64,rotated", "00020126rotatedpix")
	pix, err := f.svc.GetPixDetails(context.Background(), o.ID, shipper)
	require.NoError(t, err)
	require.NotNil(t, pix.QRCode)
	assert.Equal(t, "data:image/png;base64,rotated", *pix.QRCode)

	// The rotated payload was persisted, so an outage later serves it.
	f.gw.failGetIntent = true
	pix, err = f.svc.GetPixDetails(context.Background(), o.ID, shipper)
	require.NoError(t, err)
	require.NotNil(t, pix.QRCode)
	assert.Equal(t, "data:image/png;base64,rotated", *pix.QRCode)
}

func TestGetPaymentStatusProbeConfirms(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	p := f.requestPix(t, o.ID)

	f.gw.succeed(p.IntentID)
	got, err := f.svc.GetPaymentStatus(context.Background(), o.ID, shipper)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.ChargeRef)

	oo, err := f.orders.Find(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPendingAssignment, oo.Status)
}

func TestGetPaymentStatusProbeMarksCancelled(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	p := f.requestPix(t, o.ID)

	f.gw.cancel(p.IntentID)
	got, err := f.svc.GetPaymentStatus(context.Background(), o.ID, shipper)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestGetPaymentStatusGatewayDownFailsOpen(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	f.requestPix(t, o.ID)
	f.gw.failGetIntent = true

	got, err := f.svc.GetPaymentStatus(context.Background(), o.ID, shipper)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestInitiatePayout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.createOrder(t)
	p := f.requestPix(t, o.ID)

	f.gw.succeed(p.IntentID)
	_, err := f.svc.GetPaymentStatus(ctx, o.ID, shipper)
	require.NoError(t, err)

	for _, target := range []order.Status{
		order.StatusAccepted, order.StatusEnRoutePickup, order.StatusPickedUp,
		order.StatusInTransit, order.StatusDelivered,
	} {
		require.NoError(t, f.orders.Transition(ctx, order.TransitionCommand{
			OrderID: o.ID, Target: target, Actor: courier,
		}), "transition to %s", target)
	}

	require.NoError(t, f.accounts.SetPayoutAccount(ctx, courier.ID, "acct_77"))
	_, err = f.svc.InitiatePayout(ctx, o.ID, admin)
	assert.ErrorIs(t, err, ErrPayoutNotReady, "inactive payout account")

	found, err := f.accounts.ActivateByPayoutAccount(ctx, "acct_77")
	require.NoError(t, err)
	require.True(t, found)

	po, err := f.svc.InitiatePayout(ctx, o.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, o.Payout, po.Amount)
	assert.Equal(t, PayoutPending, po.Status)
	assert.Equal(t, courier.ID, po.CourierID)

	_, err = f.svc.InitiatePayout(ctx, o.ID, shipper)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestInitiatePayoutRequiresDelivered(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)
	f.requestPix(t, o.ID)

	_, err := f.svc.InitiatePayout(context.Background(), o.ID, admin)
	assert.ErrorIs(t, err, ErrPayoutNotReady)
}

func TestConcurrentRequestPaymentSingleRow(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	const n = 6
	var wg sync.WaitGroup
	ids := make(chan types.ID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.svc.RequestPayment(context.Background(), RequestCommand{
				OrderID: o.ID, Method: MethodPix, Actor: shipper,
			})
			if err == nil {
				ids <- p.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var distinct []types.ID
	for id := range ids {
		if len(distinct) == 0 || distinct[0] != id {
			distinct = append(distinct, id)
		}
	}
	require.Len(t, distinct, 1, "all callers must land on the same payment")

	_, err := f.payments.GetPaymentByOrder(context.Background(), o.ID)
	require.NoError(t, err)
}
