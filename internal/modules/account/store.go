// README: Payment account store interface and PostgreSQL implementation.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"levo/internal/types"
)

var ErrNotFound = errors.New("payment account not found")

type Store interface {
	Get(ctx context.Context, userID types.ID) (*Account, error)
	// SetCustomerRef caches the gateway customer id for a user, creating
	// the profile row if needed.
	SetCustomerRef(ctx context.Context, userID types.ID, customerID string) error
	SetPayoutAccount(ctx context.Context, userID types.ID, payoutAccountID string) error
	// ActivateByPayoutAccount flips payout eligibility for whichever user
	// owns the gateway payout account. Reports false when no user does.
	ActivateByPayoutAccount(ctx context.Context, payoutAccountID string) (bool, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Get(ctx context.Context, userID types.ID) (*Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, gateway_customer_id, payout_account_id, payout_active, updated_at
		FROM payment_accounts
		WHERE user_id = $1`, string(userID),
	)
	var a Account
	err := row.Scan(&a.UserID, &a.GatewayCustomerID, &a.PayoutAccountID, &a.PayoutActive, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PgStore) SetCustomerRef(ctx context.Context, userID types.ID, customerID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_accounts (user_id, gateway_customer_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET gateway_customer_id = EXCLUDED.gateway_customer_id, updated_at = EXCLUDED.updated_at`,
		string(userID), customerID, time.Now(),
	)
	return err
}

func (s *PgStore) SetPayoutAccount(ctx context.Context, userID types.ID, payoutAccountID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_accounts (user_id, payout_account_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET payout_account_id = EXCLUDED.payout_account_id, updated_at = EXCLUDED.updated_at`,
		string(userID), payoutAccountID, time.Now(),
	)
	return err
}

func (s *PgStore) ActivateByPayoutAccount(ctx context.Context, payoutAccountID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_accounts
		SET payout_active = TRUE, updated_at = $2
		WHERE payout_account_id = $1`,
		payoutAccountID, time.Now(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
