// README: payment coordinator. Creates charges on the external gateway on a
// shipper's request, caches gateway customer refs, exposes Pix details and
// status probes, and moves money to couriers after delivery. The gateway is
// the source of truth for money movement; local rows mirror it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"levo/internal/gateway"
	"levo/internal/modules/account"
	"levo/internal/modules/order"
	"levo/internal/types"
)

var (
	// ErrForbidden means the caller's role may not start payments.
	ErrForbidden = errors.New("payment: forbidden")
	// ErrBadMethod means the requested payment method is unknown.
	ErrBadMethod = errors.New("payment: unsupported method")
	// ErrPayoutNotReady means the order is not in a payable-out state or the
	// courier has no active payout account.
	ErrPayoutNotReady = errors.New("payment: payout not ready")
)

const (
	pixExpiry    = 30 * time.Minute
	boletoExpiry = 3 * 24 * time.Hour
)

// Gateway is the slice of the payment gateway client the coordinator needs.
type Gateway interface {
	CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (*gateway.Customer, error)
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
	GetIntent(ctx context.Context, id string) (*gateway.Intent, error)
	CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error)
}

// Orders is the slice of the order service the payment module needs.
type Orders interface {
	Find(ctx context.Context, id types.ID) (*order.Order, error)
	MarkPaymentConfirmed(ctx context.Context, id types.ID) error
	ForceDispute(ctx context.Context, id types.ID, note string) error
}

// Service coordinates payments between orders and the external gateway.
type Service struct {
	store    Store
	accounts account.Store
	gw       Gateway
	orders   Orders
	log      *slog.Logger
}

func NewService(store Store, accounts account.Store, gw Gateway, orders Orders, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, accounts: accounts, gw: gw, orders: orders, log: log}
}

// RequestCommand starts a payment for an order.
type RequestCommand struct {
	OrderID types.ID
	Method  Method
	Actor   order.Actor
}

// RequestPayment creates a charge for the order's fare. Repeating the call for
// the same order returns the existing payment instead of charging twice.
// Gateway failures abort the request: no local row is written for a charge
// that may not exist.
func (s *Service) RequestPayment(ctx context.Context, cmd RequestCommand) (*Payment, error) {
	if !cmd.Method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadMethod, cmd.Method)
	}
	o, err := s.orders.Find(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.Actor.Role.IsShipper() || !isPayer(o, cmd.Actor.ID) {
		// Find is ungated, so re-check here: only the order's own shipper
		// or intermediary may fund it.
		return nil, ErrForbidden
	}

	if existing, err := s.store.GetPaymentByOrder(ctx, cmd.OrderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	customerID, err := s.customerRef(ctx, cmd.Actor.ID)
	if err != nil {
		return nil, err
	}

	req := gateway.IntentRequest{
		CustomerID: customerID,
		Amount:     o.Fare,
		Currency:   o.Currency,
		Method:     string(cmd.Method),
		FeeSplit:   o.Fee,
		OrderRef:   string(o.ID),
	}
	switch cmd.Method {
	case MethodPix:
		exp := time.Now().Add(pixExpiry)
		req.ExpiresAt = &exp
	case MethodBoleto:
		exp := time.Now().Add(boletoExpiry)
		req.ExpiresAt = &exp
	}
	intent, err := s.gw.CreateIntent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create intent for order %s: %w", o.ID, err)
	}

	p := &Payment{
		ID:        types.ID(uuid.NewString()),
		OrderID:   o.ID,
		UserID:    cmd.Actor.ID,
		IntentID:  intent.ID,
		Amount:    o.Fare,
		Currency:  o.Currency,
		Method:    cmd.Method,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if intent.Pix != nil {
		p.Pix = pixFromGateway(intent.Pix)
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent request for the same order. The
			// stray intent expires on its own; return the winner's payment.
			return s.store.GetPaymentByOrder(ctx, cmd.OrderID)
		}
		return nil, err
	}
	s.log.Info("payment requested",
		"order_id", o.ID, "payment_id", p.ID, "method", cmd.Method, "amount", p.Amount)
	return p, nil
}

// isPayer reports whether the user is a party allowed to fund the order.
func isPayer(o *order.Order, userID types.ID) bool {
	if o.ShipperID == userID {
		return true
	}
	return o.IntermediaryID != nil && *o.IntermediaryID == userID
}

// customerRef returns the gateway customer id for a user, creating the
// customer on first use and caching the ref locally.
func (s *Service) customerRef(ctx context.Context, userID types.ID) (string, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err == nil && acc.GatewayCustomerID != nil {
		return *acc.GatewayCustomerID, nil
	}
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		return "", err
	}
	cust, err := s.gw.CreateCustomer(ctx, gateway.CustomerRequest{ExternalRef: string(userID)})
	if err != nil {
		return "", fmt.Errorf("create gateway customer: %w", err)
	}
	if err := s.accounts.SetCustomerRef(ctx, userID, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}

// GetPixDetails returns the Pix payload for the caller's payment on the given
// order. Payments belonging to other users are reported as not found. The
// gateway is asked on every read because it rotates expired QR codes; a
// fresher payload replaces the stored one. When the gateway is unreachable
// the stored copy is served instead, and the read only fails when there is
// nothing stored to fall back on.
func (s *Service) GetPixDetails(ctx context.Context, orderID types.ID, actor order.Actor) (PixDetails, error) {
	p, err := s.ownPayment(ctx, orderID, actor)
	if err != nil {
		return PixDetails{}, err
	}
	if p.Method != MethodPix {
		return PixDetails{}, fmt.Errorf("%w: payment method is %s", ErrBadMethod, p.Method)
	}
	intent, err := s.gw.GetIntent(ctx, p.IntentID)
	if err != nil {
		if p.Pix.QRCode != nil {
			s.log.Warn("pix refresh failed, serving stored payload",
				"payment_id", p.ID, "error", err)
			return p.Pix, nil
		}
		return PixDetails{}, fmt.Errorf("fetch pix details: %w", err)
	}
	if intent.Pix == nil {
		if p.Pix.QRCode != nil {
			return p.Pix, nil
		}
		return PixDetails{}, ErrPaymentNotFound
	}
	pix := pixFromGateway(intent.Pix)
	if !pix.equal(p.Pix) {
		if err := s.store.UpdatePixDetails(ctx, p.ID, pix); err != nil {
			s.log.Warn("pix cache update failed", "payment_id", p.ID, "error", err)
		}
	}
	return pix, nil
}

// GetPaymentStatus returns the caller's payment for the order, probing the
// gateway for a fresher status first. The probe is best effort: when the
// gateway is down the stored status is returned as-is, and the webhook
// reconciler catches up later.
func (s *Service) GetPaymentStatus(ctx context.Context, orderID types.ID, actor order.Actor) (*Payment, error) {
	p, err := s.ownPayment(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if p.Status.terminal() {
		return p, nil
	}
	intent, err := s.gw.GetIntent(ctx, p.IntentID)
	if err != nil {
		s.log.Warn("payment status probe failed", "payment_id", p.ID, "error", err)
		return p, nil
	}
	switch intent.Status {
	case gateway.IntentSucceeded:
		if _, err := s.store.MarkConfirmed(ctx, p.ID, intent.ChargeRef, time.Now()); err != nil {
			return nil, err
		}
		if err := s.orders.MarkPaymentConfirmed(ctx, p.OrderID); err != nil {
			return nil, err
		}
	case gateway.IntentCancelled:
		if _, err := s.store.MarkFailed(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return s.store.GetPaymentByOrder(ctx, orderID)
}

// ownPayment loads the payment for an order and hides it unless the caller is
// its owner.
func (s *Service) ownPayment(ctx context.Context, orderID types.ID, actor order.Actor) (*Payment, error) {
	p, err := s.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != actor.ID && actor.Role != order.RoleAdmin {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// InitiatePayout transfers the courier's share for a delivered order. Admin
// only; the usual path is the gateway's own split settlement, this is the
// manual fallback.
func (s *Service) InitiatePayout(ctx context.Context, orderID types.ID, actor order.Actor) (*Payout, error) {
	if actor.Role != order.RoleAdmin {
		return nil, ErrForbidden
	}
	o, err := s.orders.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusDelivered || o.CourierID == nil {
		return nil, fmt.Errorf("%w: order %s is %s", ErrPayoutNotReady, o.ID, o.Status)
	}
	p, err := s.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: payment is %s", ErrPayoutNotReady, p.Status)
	}
	acc, err := s.accounts.Get(ctx, *o.CourierID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, fmt.Errorf("%w: courier has no payout account", ErrPayoutNotReady)
		}
		return nil, err
	}
	if !acc.PayoutActive || acc.PayoutAccountID == nil {
		return nil, fmt.Errorf("%w: courier payout account inactive", ErrPayoutNotReady)
	}

	transfer, err := s.gw.CreateTransfer(ctx, gateway.TransferRequest{
		DestinationAccountID: *acc.PayoutAccountID,
		Amount:               o.Payout,
		Currency:             o.Currency,
		OrderRef:             string(o.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer for order %s: %w", o.ID, err)
	}
	po := &Payout{
		ID:         types.ID(uuid.NewString()),
		OrderID:    o.ID,
		CourierID:  *o.CourierID,
		TransferID: transfer.ID,
		Amount:     o.Payout,
		Status:     PayoutPending,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreatePayout(ctx, po); err != nil {
		return nil, err
	}
	s.log.Info("payout initiated",
		"order_id", o.ID, "courier_id", *o.CourierID, "transfer_id", transfer.ID, "amount", po.Amount)
	return po, nil
}

func pixFromGateway(in *gateway.PixInfo) PixDetails {
	out := PixDetails{}
	if in.QRCode != "" {
		v := in.QRCode
		out.QRCode = &v
	}
	if in.CopyPaste != "" {
		v := in.CopyPaste
		out.CopyPaste = &v
	}
	out.ExpiresAt = in.ExpiresAt
	return out
}
