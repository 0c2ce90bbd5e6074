// README: Wire types for the external payment gateway API.
package gateway

import "time"

// Intent statuses as reported by the gateway.
const (
	IntentPending   = "pending"
	IntentSucceeded = "succeeded"
	IntentCancelled = "cancelled"
)

type CustomerRequest struct {
	// ExternalRef is our user id, stored on the gateway customer so
	// support can correlate records on both sides.
	ExternalRef string `json:"external_ref"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
}

type Customer struct {
	ID string `json:"id"`
}

// IntentRequest creates a payment intent. FeeSplit is the platform's cut in
// minor units, collected by the gateway as an application-level split.
type IntentRequest struct {
	CustomerID string     `json:"customer_id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	Method     string     `json:"method"`
	FeeSplit   int64      `json:"fee_split"`
	OrderRef   string     `json:"order_ref"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type PixInfo struct {
	QRCode    string     `json:"qr_code"`
	CopyPaste string     `json:"copy_paste"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type Intent struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	ChargeRef string   `json:"charge_ref,omitempty"`
	Pix       *PixInfo `json:"pix,omitempty"`
}

type TransferRequest struct {
	DestinationAccountID string `json:"destination_account_id"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	OrderRef             string `json:"order_ref"`
}

type Transfer struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
