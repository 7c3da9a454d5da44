package billing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const metadataWorkspaceID = "workspaceId"

// StripeClientConfig configures the Stripe API client
type StripeClientConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL, mainly for tests
	APIURL  string
	Timeout time.Duration
}

// NewStripeClient builds a Stripe client with network retries disabled. The
// client is created once at startup and shared.
func NewStripeClient(cfg StripeClientConfig, logger stripe.LeveledLoggerInterface) *client.API {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     logger,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return client.New(cfg.SecretKey, backends)
}

// StripeGateway implements Provider against the Stripe API
type StripeGateway struct {
	api     *client.API
	prices  PriceLookup
	metrics *observability.Metrics
}

// NewStripeGateway creates a new StripeGateway
func NewStripeGateway(api *client.API, prices PriceLookup, metrics *observability.Metrics) *StripeGateway {
	return &StripeGateway{api: api, prices: prices, metrics: metrics}
}

// FindByEmail returns the first customer registered with email
func (g *StripeGateway) FindByEmail(ctx context.Context, email string) (_ *Customer, err error) {
	start := time.Now()
	defer func() { g.metrics.ObserveStripeCall("customers.list", start, err) }()

	params := &stripe.CustomerListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
			Single:  true,
			Limit:   stripe.Int64(1),
		},
		Email: stripe.String(email),
	}

	iter := g.api.Customers.List(params)
	if iter.Next() {
		return toCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe customers: %w", err)
	}
	return nil, nil
}

// Create creates a customer, attaching VAT as tax_id_data when present
func (g *StripeGateway) Create(ctx context.Context, p CustomerParams) (_ *Customer, err error) {
	start := time.Now()
	defer func() { g.metrics.ObserveStripeCall("customers.create", start, err) }()

	params := customerParams(ctx, p)
	if p.VAT != nil {
		params.TaxIDData = []*stripe.CustomerTaxIDDataParams{{
			Type:  stripe.String(p.VAT.Type),
			Value: stripe.String(p.VAT.Value),
		}}
	}

	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return toCustomer(c), nil
}

// Update rewrites name, email and workspace metadata on an existing customer.
// Stripe only accepts tax_id_data on create, so VAT is added as a new tax ID.
func (g *StripeGateway) Update(ctx context.Context, customerID string, p CustomerParams) (_ *Customer, err error) {
	start := time.Now()
	defer func() { g.metrics.ObserveStripeCall("customers.update", start, err) }()

	c, err := g.api.Customers.Update(customerID, customerParams(ctx, p))
	if err != nil {
		return nil, fmt.Errorf("failed to update stripe customer %s: %w", customerID, err)
	}

	if p.VAT != nil {
		if err := g.addTaxID(ctx, customerID, p.VAT); err != nil {
			return nil, err
		}
	}
	return toCustomer(c), nil
}

func (g *StripeGateway) addTaxID(ctx context.Context, customerID string, vat *VAT) (err error) {
	start := time.Now()
	defer func() { g.metrics.ObserveStripeCall("tax_ids.create", start, err) }()

	_, err = g.api.TaxIDs.New(&stripe.TaxIDParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Type:     stripe.String(vat.Type),
		Value:    stripe.String(vat.Value),
	})
	if err != nil {
		return fmt.Errorf("failed to add tax id to stripe customer %s: %w", customerID, err)
	}
	return nil
}

// CheckoutURL creates a subscription checkout session and returns its hosted URL
func (g *StripeGateway) CheckoutURL(ctx context.Context, p CheckoutURLParams) (_ string, err error) {
	price, ok := g.prices.PriceID(p.Plan)
	if !ok {
		return "", newError(CodeConfigurationMissing, fmt.Sprintf("no Stripe price configured for plan %s", p.Plan), nil)
	}

	successURL, err := returnURLWith(p.ReturnURL, url.Values{
		"stripe":  {string(p.Plan)},
		"success": {"true"},
	})
	if err != nil {
		return "", err
	}
	cancelURL, err := returnURLWith(p.ReturnURL, url.Values{"stripe": {"cancel"}})
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() { g.metrics.ObserveStripeCall("checkout_sessions.create", start, err) }()

	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(p.CustomerID),
		Currency: stripe.String(string(p.Currency)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(price),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:               stripe.String(successURL),
		CancelURL:                stripe.String(cancelURL),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		},
		CustomerUpdate: &stripe.CheckoutSessionCustomerUpdateParams{
			Address: stripe.String("auto"),
			Name:    stripe.String("never"),
		},
	}
	params.AddMetadata(metadataWorkspaceID, p.WorkspaceID)
	params.AddMetadata("plan", string(p.Plan))
	params.AddMetadata("userId", p.UserID)

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return session.URL, nil
}

func customerParams(ctx context.Context, p CustomerParams) *stripe.CustomerParams {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(p.Email),
		Name:   stripe.String(p.Name),
	}
	params.AddMetadata(metadataWorkspaceID, p.WorkspaceID)
	return params
}

func toCustomer(c *stripe.Customer) *Customer {
	return &Customer{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		WorkspaceID: c.Metadata[metadataWorkspaceID],
	}
}

// returnURLWith merges extra query parameters into the caller's return URL
func returnURLWith(raw string, extra url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", newError(CodeValidationFailed, "returnUrl must be a valid URL", err)
	}
	q := u.Query()
	for key, values := range extra {
		q[key] = values
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
