package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/platinummonkey/workspace-billing/pkg/workspaces"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// PlanActivator records a completed checkout on the workspace
type PlanActivator interface {
	// ActivatePlan returns workspaces.ErrNotFound for an unknown workspace
	ActivatePlan(ctx context.Context, workspaceID, plan, customerID string) error
}

// WebhookResult describes what Process did with an event
type WebhookResult string

const (
	WebhookProcessed WebhookResult = "processed"
	WebhookIgnored   WebhookResult = "ignored"
	WebhookDuplicate WebhookResult = "duplicate"
)

const eventCheckoutSessionCompleted = "checkout.session.completed"

// WebhookProcessor verifies and applies Stripe webhook events
type WebhookProcessor struct {
	secret    string
	activator PlanActivator
	seen      *lru.Cache[string, struct{}]
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewWebhookProcessor creates a processor that remembers the last dedupeSize event IDs
func NewWebhookProcessor(secret string, activator PlanActivator, dedupeSize int, metrics *observability.Metrics, logger *observability.Logger) (*WebhookProcessor, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if dedupeSize <= 0 {
		dedupeSize = 4096
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook dedupe cache: %w", err)
	}
	return &WebhookProcessor{
		secret:    secret,
		activator: activator,
		seen:      seen,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Process verifies payload against the Stripe-Signature header and applies the
// event. A returned error other than ErrInvalidSignature means Stripe should retry.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (result WebhookResult, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.record("unknown", "invalid_signature")
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	logger := p.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": eventType,
	})

	if p.seen.Contains(event.ID) {
		p.record(eventType, string(WebhookDuplicate))
		logger.Debug("duplicate webhook event")
		return WebhookDuplicate, nil
	}

	defer func() {
		if err != nil {
			p.record(eventType, "error")
			return
		}
		p.seen.Add(event.ID, struct{}{})
		p.record(eventType, string(result))
	}()

	if eventType != eventCheckoutSessionCompleted {
		return WebhookIgnored, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", fmt.Errorf("failed to decode checkout session: %w", err)
	}

	workspaceID := session.Metadata[metadataWorkspaceID]
	plan := Plan(session.Metadata["plan"])
	if workspaceID == "" || !plan.Valid() || session.Customer == nil || session.Customer.ID == "" {
		logger.WithField("session_id", session.ID).Warn("checkout session without workspace metadata")
		return WebhookIgnored, nil
	}

	logger = logger.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"plan":         string(plan),
		"customer_id":  session.Customer.ID,
	})

	err = p.activator.ActivatePlan(ctx, workspaceID, string(plan), session.Customer.ID)
	if errors.Is(err, workspaces.ErrNotFound) {
		logger.Warn("checkout completed for unknown workspace")
		return WebhookIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to activate plan: %w", err)
	}

	logger.Info("workspace plan activated")
	return WebhookProcessed, nil
}

func (p *WebhookProcessor) record(eventType, status string) {
	if p.metrics != nil {
		p.metrics.WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
	}
}
