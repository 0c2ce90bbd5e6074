// README: Payment, payout, and dispute aggregates mirrored from the gateway.
package payment

import (
	"time"

	"levo/internal/types"
)

type Method string

const (
	MethodPix    Method = "pix"
	MethodCard   Method = "card"
	MethodBoleto Method = "boleto"
)

func (m Method) Valid() bool {
	switch m {
	case MethodPix, MethodCard, MethodBoleto:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
	StatusExpired    Status = "expired"
)

// terminal statuses are immutable; reconciliation never rewrites them.
func (s Status) terminal() bool {
	return s == StatusConfirmed || s == StatusRefunded
}

// PixDetails is the method-specific projection, refreshed opportunistically
// from the gateway on read.
type PixDetails struct {
	QRCode    *string
	CopyPaste *string
	ExpiresAt *time.Time
}

func (d PixDetails) equal(other PixDetails) bool {
	return strPtrEq(d.QRCode, other.QRCode) &&
		strPtrEq(d.CopyPaste, other.CopyPaste) &&
		timePtrEq(d.ExpiresAt, other.ExpiresAt)
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Payment is the locally persisted mirror of a gateway payment intent.
// At most one exists per order.
type Payment struct {
	ID        types.ID
	OrderID   types.ID
	UserID    types.ID
	IntentID  string
	ChargeRef *string
	Amount    int64
	Currency  string
	Method    Method
	Status    Status
	Pix       PixDetails
	CreatedAt time.Time
	PaidAt    *time.Time
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
)

// Payout tracks one transfer-to-courier; its status mirrors the gateway's
// payout lifecycle and is updated only by reconciliation.
type Payout struct {
	ID          types.ID
	OrderID     types.ID
	CourierID   types.ID
	TransferID  string
	Amount      int64
	Status      PayoutStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

const DisputeOpen = "open"

// Dispute freezes an order; at most one exists per order.
type Dispute struct {
	ID               types.ID
	OrderID          types.ID
	GatewayDisputeID *string
	Status           string
	Reason           *string
	OpenedAt         time.Time
	UpdatedAt        time.Time
}
