// README: Payment store interface and PostgreSQL implementation.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"levo/internal/types"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicate       = errors.New("payment already exists for order")
)

type Store interface {
	// CreatePayment inserts a new payment; ErrDuplicate when the order
	// already has one (unique constraint on order_id).
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrder(ctx context.Context, orderID types.ID) (*Payment, error)
	GetPaymentByIntent(ctx context.Context, intentID string) (*Payment, error)
	UpdatePixDetails(ctx context.Context, paymentID types.ID, pix PixDetails) error
	// MarkConfirmed sets the payment confirmed exactly once; false when it
	// was already terminal.
	MarkConfirmed(ctx context.Context, paymentID types.ID, chargeRef string, paidAt time.Time) (bool, error)
	// MarkFailed moves a pending/processing payment to failed.
	MarkFailed(ctx context.Context, paymentID types.ID) (bool, error)

	CreatePayout(ctx context.Context, p *Payout) error
	// SetPayoutStatusByTransfer is keyed on the gateway transfer reference.
	// Status only advances (pending -> processing -> paid), so replayed and
	// out-of-order events never regress a payout. False when no payout
	// matches.
	SetPayoutStatusByTransfer(ctx context.Context, transferID string, status PayoutStatus, processedAt *time.Time) (bool, error)

	// UpsertDispute creates or refreshes the order's dispute, preserving
	// the original opened-at on update.
	UpsertDispute(ctx context.Context, d Dispute) error
	GetDisputeByOrder(ctx context.Context, orderID types.ID) (*Dispute, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payments (
			id, order_id, user_id, gateway_intent_id, charge_ref, amount, currency,
			method, status, pix_qr, pix_copy_paste, pix_expires_at, created_at, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(p.ID), string(p.OrderID), string(p.UserID), p.IntentID, p.ChargeRef, p.Amount, p.Currency,
		string(p.Method), string(p.Status), p.Pix.QRCode, p.Pix.CopyPaste, p.Pix.ExpiresAt, p.CreatedAt, p.PaidAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

const selectPayments = `
	SELECT id, order_id, user_id, gateway_intent_id, charge_ref, amount, currency,
	       method, status, pix_qr, pix_copy_paste, pix_expires_at, created_at, paid_at
	FROM payments`

func (s *PgStore) GetPaymentByOrder(ctx context.Context, orderID types.ID) (*Payment, error) {
	return s.getPayment(ctx, selectPayments+` WHERE order_id = $1`, string(orderID))
}

func (s *PgStore) GetPaymentByIntent(ctx context.Context, intentID string) (*Payment, error) {
	return s.getPayment(ctx, selectPayments+` WHERE gateway_intent_id = $1`, intentID)
}

func (s *PgStore) getPayment(ctx context.Context, query string, arg any) (*Payment, error) {
	row := s.db.QueryRow(ctx, query, arg)

	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.IntentID, &p.ChargeRef, &p.Amount, &p.Currency,
		&p.Method, &p.Status, &p.Pix.QRCode, &p.Pix.CopyPaste, &p.Pix.ExpiresAt, &p.CreatedAt, &p.PaidAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) UpdatePixDetails(ctx context.Context, paymentID types.ID, pix PixDetails) error {
	_, err := s.db.Exec(ctx, `
		UPDATE payments
		SET pix_qr = $2, pix_copy_paste = $3, pix_expires_at = $4
		WHERE id = $1`,
		string(paymentID), pix.QRCode, pix.CopyPaste, pix.ExpiresAt,
	)
	return err
}

func (s *PgStore) MarkConfirmed(ctx context.Context, paymentID types.ID, chargeRef string, paidAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = 'confirmed', charge_ref = $2, paid_at = $3
		WHERE id = $1 AND status NOT IN ('confirmed', 'refunded')`,
		string(paymentID), chargeRef, paidAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) MarkFailed(ctx context.Context, paymentID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = 'failed'
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		string(paymentID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) CreatePayout(ctx context.Context, p *Payout) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payouts (id, order_id, courier_id, gateway_transfer_id, amount, status, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(p.ID), string(p.OrderID), string(p.CourierID), p.TransferID, p.Amount, string(p.Status), p.CreatedAt, p.ProcessedAt,
	)
	return err
}

func (s *PgStore) SetPayoutStatusByTransfer(ctx context.Context, transferID string, status PayoutStatus, processedAt *time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payouts
		SET status = $2, processed_at = COALESCE($3, processed_at)
		WHERE gateway_transfer_id = $1
		  AND array_position(ARRAY['pending','processing','paid'], status)
		      < array_position(ARRAY['pending','processing','paid'], $2)`,
		transferID, string(status), processedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// Nothing advanced: either the payout does not exist or the event is a
	// replay of an already-applied (or later) state.
	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payouts WHERE gateway_transfer_id = $1)`,
		transferID,
	).Scan(&exists)
	return exists, err
}

func (s *PgStore) UpsertDispute(ctx context.Context, d Dispute) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO disputes (id, order_id, gateway_dispute_id, status, reason, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE
		SET gateway_dispute_id = EXCLUDED.gateway_dispute_id,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at`,
		string(d.ID), string(d.OrderID), d.GatewayDisputeID, d.Status, d.Reason, d.OpenedAt, d.UpdatedAt,
	)
	return err
}

func (s *PgStore) GetDisputeByOrder(ctx context.Context, orderID types.ID) (*Dispute, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, gateway_dispute_id, status, reason, opened_at, updated_at
		FROM disputes
		WHERE order_id = $1`, string(orderID),
	)
	var d Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.GatewayDisputeID, &d.Status, &d.Reason, &d.OpenedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
