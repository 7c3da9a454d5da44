package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/platinummonkey/workspace-billing/pkg/workspaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Form   url.Values
}

// stripeDouble serves the handful of Stripe endpoints the gateway calls
type stripeDouble struct {
	mu        sync.Mutex
	requests  []recordedRequest
	customers []map[string]interface{}
	status    int
}

func newStripeDouble(t *testing.T) (*stripeDouble, *httptest.Server) {
	t.Helper()
	d := &stripeDouble{}
	srv := httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(srv.Close)
	return d, srv
}

func (d *stripeDouble) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	d.mu.Lock()
	d.requests = append(d.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Form: r.Form})
	status := d.status
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"type": "api_error", "message": "boom"},
		})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/customers":
		email := r.Form.Get("email")
		data := []map[string]interface{}{}
		for _, c := range d.customers {
			if c["email"] == email {
				data = append(data, c)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object":   "list",
			"data":     data,
			"has_more": false,
			"url":      "/v1/customers",
		})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/customers":
		_ = json.NewEncoder(w).Encode(customerJSON("cus_new", r.Form))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/tax_ids"):
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "txi_1",
			"object": "tax_id",
			"type":   r.Form.Get("type"),
			"value":  r.Form.Get("value"),
		})
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/customers/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/customers/")
		_ = json.NewEncoder(w).Encode(customerJSON(id, r.Form))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cs_test_1",
			"object": "checkout.session",
			"url":    "https://checkout.stripe.com/c/pay/cs_test_1",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"type": "invalid_request_error", "message": "unknown route"},
		})
	}
}

func customerJSON(id string, form url.Values) map[string]interface{} {
	return map[string]interface{}{
		"id":       id,
		"object":   "customer",
		"email":    form.Get("email"),
		"name":     form.Get("name"),
		"metadata": map[string]string{"workspaceId": form.Get("metadata[workspaceId]")},
	}
}

func (d *stripeDouble) Requests() []recordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]recordedRequest(nil), d.requests...)
}

func newTestGateway(t *testing.T, srv *httptest.Server, metrics *observability.Metrics) *StripeGateway {
	t.Helper()
	api := NewStripeClient(StripeClientConfig{
		SecretKey: "sk_test_123",
		APIURL:    srv.URL,
	}, observability.NewLogger(observability.ErrorLevel, io.Discard))
	catalog := NewStaticCatalog(map[Plan]string{
		PlanStarter: "price_starter",
		PlanPro:     "price_pro",
	})
	return NewStripeGateway(api, catalog, metrics)
}

func TestStripeGateway_FindByEmail(t *testing.T) {
	double, srv := newStripeDouble(t)
	double.customers = []map[string]interface{}{
		{"id": "cus_1", "object": "customer", "email": "a@x.com", "metadata": map[string]string{"workspaceId": "w1"}},
	}
	gw := newTestGateway(t, srv, nil)

	customer, err := gw.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "cus_1", customer.ID)
	assert.Equal(t, "w1", customer.WorkspaceID)

	reqs := double.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "a@x.com", reqs[0].Form.Get("email"))
	assert.Equal(t, "1", reqs[0].Form.Get("limit"))
}

func TestStripeGateway_FindByEmailNoMatch(t *testing.T) {
	_, srv := newStripeDouble(t)
	gw := newTestGateway(t, srv, nil)

	customer, err := gw.FindByEmail(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, customer)
}

func TestStripeGateway_CreateWithVAT(t *testing.T) {
	double, srv := newStripeDouble(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gw := newTestGateway(t, srv, metrics)

	customer, err := gw.Create(context.Background(), CustomerParams{
		Email:       "a@x.com",
		Name:        "Acme",
		WorkspaceID: "w1",
		VAT:         &VAT{Type: "eu_vat", Value: "DE123456789"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", customer.ID)

	reqs := double.Requests()
	require.Len(t, reqs, 1)
	form := reqs[0].Form
	assert.Equal(t, "a@x.com", form.Get("email"))
	assert.Equal(t, "Acme", form.Get("name"))
	assert.Equal(t, "w1", form.Get("metadata[workspaceId]"))
	assert.Equal(t, "eu_vat", form.Get("tax_id_data[0][type]"))
	assert.Equal(t, "DE123456789", form.Get("tax_id_data[0][value]"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StripeRequestsTotal.WithLabelValues("customers.create", "ok")))
}

func TestStripeGateway_CreateWithoutVAT(t *testing.T) {
	double, srv := newStripeDouble(t)
	gw := newTestGateway(t, srv, nil)

	_, err := gw.Create(context.Background(), CustomerParams{Email: "a@x.com", Name: "Acme", WorkspaceID: "w1"})
	require.NoError(t, err)

	form := double.Requests()[0].Form
	assert.Empty(t, form.Get("tax_id_data[0][type]"))
}

func TestStripeGateway_UpdateAddsTaxID(t *testing.T) {
	double, srv := newStripeDouble(t)
	gw := newTestGateway(t, srv, nil)

	customer, err := gw.Update(context.Background(), "cus_1", CustomerParams{
		Email:       "a@x.com",
		Name:        "Acme",
		WorkspaceID: "w1",
		VAT:         &VAT{Type: "eu_vat", Value: "FR12345678901"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", customer.ID)

	reqs := double.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/v1/customers/cus_1", reqs[0].Path)
	assert.Equal(t, "w1", reqs[0].Form.Get("metadata[workspaceId]"))
	assert.Empty(t, reqs[0].Form.Get("tax_id_data[0][type]"))
	assert.Equal(t, "/v1/customers/cus_1/tax_ids", reqs[1].Path)
	assert.Equal(t, "eu_vat", reqs[1].Form.Get("type"))
	assert.Equal(t, "FR12345678901", reqs[1].Form.Get("value"))
}

func TestStripeGateway_CheckoutURL(t *testing.T) {
	double, srv := newStripeDouble(t)
	gw := newTestGateway(t, srv, nil)

	checkoutURL, err := gw.CheckoutURL(context.Background(), CheckoutURLParams{
		CustomerID:  "cus_1",
		UserID:      "u1",
		WorkspaceID: "w1",
		Currency:    CurrencyEUR,
		Plan:        PlanPro,
		ReturnURL:   "https://app.example.com/w1/settings",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", checkoutURL)

	reqs := double.Requests()
	require.Len(t, reqs, 1)
	form := reqs[0].Form
	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "cus_1", form.Get("customer"))
	assert.Equal(t, "eur", form.Get("currency"))
	assert.Equal(t, "price_pro", form.Get("line_items[0][price]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "https://app.example.com/w1/settings?stripe=PRO&success=true", form.Get("success_url"))
	assert.Equal(t, "https://app.example.com/w1/settings?stripe=cancel", form.Get("cancel_url"))
	assert.Equal(t, "true", form.Get("allow_promotion_codes"))
	assert.Equal(t, "required", form.Get("billing_address_collection"))
	assert.Equal(t, "true", form.Get("automatic_tax[enabled]"))
	assert.Equal(t, "auto", form.Get("customer_update[address]"))
	assert.Equal(t, "never", form.Get("customer_update[name]"))
	assert.Equal(t, "w1", form.Get("metadata[workspaceId]"))
	assert.Equal(t, "PRO", form.Get("metadata[plan]"))
	assert.Equal(t, "u1", form.Get("metadata[userId]"))
}

func TestStripeGateway_CheckoutURLKeepsReturnQuery(t *testing.T) {
	double, srv := newStripeDouble(t)
	gw := newTestGateway(t, srv, nil)

	_, err := gw.CheckoutURL(context.Background(), CheckoutURLParams{
		CustomerID: "cus_1",
		Plan:       PlanStarter,
		Currency:   CurrencyUSD,
		ReturnURL:  "https://app.example.com/billing?tab=plans",
	})
	require.NoError(t, err)

	form := double.Requests()[0].Form
	assert.Equal(t, "https://app.example.com/billing?stripe=STARTER&success=true&tab=plans", form.Get("success_url"))
	assert.Equal(t, "price_starter", form.Get("line_items[0][price]"))
}

func TestStripeGateway_CheckoutURLMissingPrice(t *testing.T) {
	double, srv := newStripeDouble(t)
	api := NewStripeClient(StripeClientConfig{SecretKey: "sk_test_123", APIURL: srv.URL}, nil)
	gw := NewStripeGateway(api, NewStaticCatalog(map[Plan]string{PlanStarter: "price_starter"}), nil)

	_, err := gw.CheckoutURL(context.Background(), CheckoutURLParams{
		CustomerID: "cus_1",
		Plan:       PlanPro,
		Currency:   CurrencyUSD,
		ReturnURL:  "https://app.example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.Empty(t, double.Requests())
}

func TestStripeGateway_APIError(t *testing.T) {
	double, srv := newStripeDouble(t)
	double.status = http.StatusInternalServerError
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gw := newTestGateway(t, srv, metrics)

	_, err := gw.FindByEmail(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.Equal(t, CodeInternalFailure, CodeOf(err))
	assert.Len(t, double.Requests(), 1, "requests must not be retried")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StripeRequestsTotal.WithLabelValues("customers.list", "error")))
}

func TestCheckoutService_WithStripeGateway(t *testing.T) {
	double, srv := newStripeDouble(t)
	store := newFakeStore(adminWorkspace("w1", "u1"))
	svc := NewCheckoutService(CheckoutServiceConfig{
		Workspaces: store,
		Users:      store,
		Authorizer: workspaces.AdminWriteGuard{},
		Provider:   newTestGateway(t, srv, nil),
	})

	session, err := svc.CreateCheckoutSession(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.CheckoutURL)

	var paths []string
	for _, r := range double.Requests() {
		paths = append(paths, r.Method+" "+r.Path)
	}
	assert.Equal(t, []string{
		"GET /v1/customers",
		"POST /v1/customers",
		"POST /v1/checkout/sessions",
	}, paths)
	assert.Equal(t, "cus_new", *store.workspaces["w1"].StripeID)
}
