package billing

import "github.com/platinummonkey/workspace-billing/pkg/auth"

// Plan is a paid subscription tier
type Plan string

const (
	PlanStarter Plan = "STARTER"
	PlanPro     Plan = "PRO"
)

// Plans lists every purchasable plan
var Plans = []Plan{PlanStarter, PlanPro}

// Valid reports whether p is a purchasable plan
func (p Plan) Valid() bool {
	return p == PlanStarter || p == PlanPro
}

// Currency is a checkout currency
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
)

// VAT is tax ID data forwarded to Stripe untouched
type VAT struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// CheckoutRequest asks for a checkout session on behalf of an authenticated user
type CheckoutRequest struct {
	WorkspaceID string    `json:"workspaceId" validate:"required"`
	User        auth.User `json:"-" validate:"-"`
	ReturnURL   string    `json:"returnUrl" validate:"required,url"`
	Email       string    `json:"email" validate:"required,email"`
	Company     string    `json:"company" validate:"required"`
	Plan        Plan      `json:"plan" validate:"required,oneof=STARTER PRO"`
	Currency    Currency  `json:"currency" validate:"required,oneof=usd eur"`
	VAT         *VAT      `json:"vat,omitempty" validate:"-"`
}

// CheckoutSession is the result of a successful checkout initiation
type CheckoutSession struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// Customer is a Stripe customer as seen by the checkout workflow
type Customer struct {
	ID          string
	Email       string
	Name        string
	WorkspaceID string
}

// CustomerParams are the attributes written on customer create or update
type CustomerParams struct {
	Email       string
	Name        string
	WorkspaceID string
	VAT         *VAT
}

// CheckoutURLParams describe the checkout session to create
type CheckoutURLParams struct {
	CustomerID  string
	UserID      string
	WorkspaceID string
	Currency    Currency
	Plan        Plan
	ReturnURL   string
}
