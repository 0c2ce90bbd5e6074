// README: Per-user payment profile (cached gateway customer, payout account).
package account

import (
	"time"

	"levo/internal/types"
)

type Account struct {
	UserID            types.ID
	GatewayCustomerID *string
	PayoutAccountID   *string
	PayoutActive      bool
	UpdatedAt         time.Time
}
