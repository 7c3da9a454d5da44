// Package billing initiates subscription checkout for a workspace against Stripe.
//
// # Checkout
//
// CheckoutService.CreateCheckoutSession runs a fail-fast guard sequence and then
// provisions a Stripe customer and a hosted checkout session:
//
//  1. Stripe must be configured (CONFIGURATION_MISSING otherwise)
//  2. the request must be well formed (VALIDATION_FAILED)
//  3. the workspace must exist and the caller must be one of its admins (NOT_FOUND for both)
//  4. the workspace must not already reference a customer (ALREADY_EXISTS)
//
// The caller's company is saved, the customer is found by email and updated, or
// created, and the workspace claims the customer with a compare-and-set update
// before the checkout URL is requested.
//
//	svc := billing.NewCheckoutService(billing.CheckoutServiceConfig{
//		Workspaces: store,
//		Users:      store,
//		Authorizer: workspaces.AdminWriteGuard{},
//		Provider:   billing.NewBreakerGateway(gateway, billing.BreakerSettings{}, metrics),
//		Locker:     billing.NewRedisLocker(redisClient, ""),
//	})
//	session, err := svc.CreateCheckoutSession(ctx, req)
//
// # Errors
//
// Every failure is a *Error with a stable Code. Match with errors.Is against
// the ErrConfigurationMissing, ErrNotFound, ErrAlreadyExists, ErrValidationFailed
// and ErrInternalFailure sentinels.
//
// # Webhooks
//
// WebhookProcessor verifies Stripe-Signature headers and activates the plan
// recorded in the session metadata once checkout.session.completed arrives.
package billing
