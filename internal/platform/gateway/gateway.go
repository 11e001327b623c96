// Package gateway holds thin HTTP adapters for the payment providers.
// Adapters do transport and signature verification only; reconciliation
// semantics live with the payment service.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const requestTimeout = 30 * time.Second

var decimalHundred = decimal.NewFromInt(100)

// CheckoutRequest is the provider-neutral input for creating a hosted
// checkout (Stripe session or PayPal order).
type CheckoutRequest struct {
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CustomerEmail string
	// InvoiceID and Metadata both carry the subscription reference so a
	// webhook can be tied back even when one channel drops it.
	InvoiceID string
	Metadata  map[string]string
	ReturnURL string
	CancelURL string
}

// Checkout is the created session/order the caller redirects to.
type Checkout struct {
	ID          string
	ApproveURL  string
	RawResponse json.RawMessage
}

// Order is a provider order as returned by capture or lookup.
type Order struct {
	ID          string
	Status      string
	Amount      decimal.Decimal
	Currency    string
	CustomID    string
	InvoiceID   string
	CaptureID   string
	RawResponse json.RawMessage
}
