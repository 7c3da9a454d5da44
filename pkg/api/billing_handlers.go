package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/workspace-billing/pkg/billing"
	"github.com/platinummonkey/workspace-billing/pkg/httputil"
	"github.com/platinummonkey/workspace-billing/pkg/middleware"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
)

// maxWebhookBytes caps how much of a webhook body is read into memory
const maxWebhookBytes = 512 * 1024

// CheckoutCreator starts checkouts
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req *billing.CheckoutRequest) (*billing.CheckoutSession, error)
}

// WebhookProcessor applies verified Stripe events
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (billing.WebhookResult, error)
}

// CheckoutSessionRequest is the checkout request body
type CheckoutSessionRequest struct {
	ReturnURL string           `json:"returnUrl"`
	Email     string           `json:"email"`
	Company   string           `json:"company"`
	Plan      billing.Plan     `json:"plan"`
	Currency  billing.Currency `json:"currency"`
	VAT       *billing.VAT     `json:"vat,omitempty"`
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
}

// BillingHandlers handles billing-related HTTP requests
type BillingHandlers struct {
	checkout CheckoutCreator
	webhooks WebhookProcessor
}

// NewBillingHandlers creates a new BillingHandlers. A nil webhooks processor
// answers webhook deliveries with CONFIGURATION_MISSING.
func NewBillingHandlers(checkout CheckoutCreator, webhooks WebhookProcessor) *BillingHandlers {
	return &BillingHandlers{
		checkout: checkout,
		webhooks: webhooks,
	}
}

// RegisterRoutes registers billing routes. protect wraps routes that need an
// authenticated caller.
func (h *BillingHandlers) RegisterRoutes(router *mux.Router, protect func(http.Handler) http.Handler) {
	router.Handle("/v1/workspaces/{id}/checkout-session", protect(http.HandlerFunc(h.CreateCheckoutSession))).Methods("POST")
	router.HandleFunc("/v1/billing/webhook", h.HandleWebhook).Methods("POST")
}

// CreateCheckoutSession starts a subscription checkout for a workspace
func (h *BillingHandlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	workspaceID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var body CheckoutSessionRequest
	if err := httputil.ParseJSON(r, &body); err != nil {
		httputil.WriteCodedError(w, http.StatusBadRequest, string(billing.CodeValidationFailed), err.Error())
		return
	}

	session, err := h.checkout.CreateCheckoutSession(r.Context(), &billing.CheckoutRequest{
		WorkspaceID: workspaceID,
		User:        authCtx.User,
		ReturnURL:   body.ReturnURL,
		Email:       body.Email,
		Company:     body.Company,
		Plan:        body.Plan,
		Currency:    body.Currency,
		VAT:         body.VAT,
	})
	if err != nil {
		writeBillingError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, session)
}

// HandleWebhook verifies and applies a Stripe webhook delivery
func (h *BillingHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		httputil.WriteCodedError(w, http.StatusInternalServerError,
			string(billing.CodeConfigurationMissing), "Stripe webhook secret is missing")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}
	if len(payload) > maxWebhookBytes {
		httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	result, err := h.webhooks.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, billing.ErrInvalidSignature) {
		observability.FromContext(r.Context()).WithError(err).Warn("rejected webhook delivery")
		httputil.WriteBadRequest(w, "invalid signature")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("webhook processing failed")
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, WebhookResponse{Received: true, Result: string(result)})
}
