// README: webhook event reconciler. Applies gateway events to local payment,
// payout, dispute, and order state. Every handler is idempotent: the gateway
// redelivers events until acknowledged, so replays must land on the same
// final state without side effects.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"levo/internal/modules/account"
	"levo/internal/types"
)

// Reconciler consumes verified gateway events.
type Reconciler struct {
	store    Store
	accounts account.Store
	orders   Orders
	log      *slog.Logger
}

func NewReconciler(store Store, accounts account.Store, orders Orders, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, accounts: accounts, orders: orders, log: log}
}

// Handle applies one event. A nil return acknowledges the delivery; an error
// tells the webhook endpoint to reply 5xx so the gateway retries. Events that
// reference unknown records are acknowledged and logged, not retried: a
// record that does not exist now will not exist on redelivery either.
func (r *Reconciler) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventPaymentConfirmed:
		return r.paymentConfirmed(ctx, ev)
	case EventPaymentFailed:
		return r.paymentFailed(ctx, ev)
	case EventTransferCreated:
		return r.transferStatus(ctx, ev, PayoutProcessing, nil)
	case EventPayoutPaid:
		at := ev.CreatedAt
		if at.IsZero() {
			at = time.Now()
		}
		return r.transferStatus(ctx, ev, PayoutPaid, &at)
	case EventDisputeOpened:
		return r.disputeOpened(ctx, ev)
	case EventAccountActivated:
		return r.accountActivated(ctx, ev)
	default:
		r.log.Info("ignoring gateway event", "event_id", ev.ID, "kind", ev.Kind)
		return nil
	}
}

func (r *Reconciler) paymentConfirmed(ctx context.Context, ev Event) error {
	p, err := r.store.GetPaymentByIntent(ctx, ev.Data.IntentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			r.log.Warn("confirmed event for unknown intent", "event_id", ev.ID, "intent_id", ev.Data.IntentID)
			return nil
		}
		return err
	}
	changed, err := r.store.MarkConfirmed(ctx, p.ID, ev.Data.ChargeRef, ev.CreatedAt)
	if err != nil {
		return err
	}
	if !changed {
		// Replay of an already-confirmed payment.
		return nil
	}
	if err := r.orders.MarkPaymentConfirmed(ctx, p.OrderID); err != nil {
		return err
	}
	r.log.Info("payment confirmed", "order_id", p.OrderID, "payment_id", p.ID, "event_id", ev.ID)
	return nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, ev Event) error {
	p, err := r.store.GetPaymentByIntent(ctx, ev.Data.IntentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			r.log.Warn("failed event for unknown intent", "event_id", ev.ID, "intent_id", ev.Data.IntentID)
			return nil
		}
		return err
	}
	changed, err := r.store.MarkFailed(ctx, p.ID)
	if err != nil {
		return err
	}
	if changed {
		r.log.Info("payment failed",
			"order_id", p.OrderID, "payment_id", p.ID, "event_id", ev.ID, "reason", ev.Data.Reason)
	}
	return nil
}

func (r *Reconciler) transferStatus(ctx context.Context, ev Event, status PayoutStatus, processedAt *time.Time) error {
	found, err := r.store.SetPayoutStatusByTransfer(ctx, ev.Data.TransferID, status, processedAt)
	if err != nil {
		return err
	}
	if !found {
		r.log.Warn("transfer event for unknown payout", "event_id", ev.ID, "transfer_id", ev.Data.TransferID)
		return nil
	}
	r.log.Info("payout updated", "transfer_id", ev.Data.TransferID, "status", status, "event_id", ev.ID)
	return nil
}

func (r *Reconciler) disputeOpened(ctx context.Context, ev Event) error {
	p, err := r.store.GetPaymentByIntent(ctx, ev.Data.IntentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			r.log.Warn("dispute event for unknown intent", "event_id", ev.ID, "intent_id", ev.Data.IntentID)
			return nil
		}
		return err
	}
	d := Dispute{
		ID:        uuidID(),
		OrderID:   p.OrderID,
		Status:    DisputeOpen,
		OpenedAt:  ev.CreatedAt,
		UpdatedAt: time.Now(),
	}
	if ev.Data.DisputeID != "" {
		v := ev.Data.DisputeID
		d.GatewayDisputeID = &v
	}
	if ev.Data.Reason != "" {
		v := ev.Data.Reason
		d.Reason = &v
	}
	if err := r.store.UpsertDispute(ctx, d); err != nil {
		return err
	}
	if err := r.orders.ForceDispute(ctx, p.OrderID, "payment disputed at gateway"); err != nil {
		return err
	}
	r.log.Warn("dispute opened", "order_id", p.OrderID, "event_id", ev.ID, "reason", ev.Data.Reason)
	return nil
}

func (r *Reconciler) accountActivated(ctx context.Context, ev Event) error {
	found, err := r.accounts.ActivateByPayoutAccount(ctx, ev.Data.AccountID)
	if err != nil {
		return err
	}
	if !found {
		r.log.Warn("activation for unknown payout account", "event_id", ev.ID, "account_id", ev.Data.AccountID)
		return nil
	}
	r.log.Info("payout account activated", "account_id", ev.Data.AccountID, "event_id", ev.ID)
	return nil
}

func uuidID() types.ID {
	return types.ID(uuid.NewString())
}
