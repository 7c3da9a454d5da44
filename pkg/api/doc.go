// Package api exposes the billing HTTP API.
//
// # Routes
//
//	POST /v1/workspaces/{id}/checkout-session   start a subscription checkout (bearer token)
//	POST /v1/billing/webhook                     Stripe webhook endpoint (Stripe-Signature)
//
// A checkout body looks like:
//
//	{
//	  "returnUrl": "https://app.example.com/w1/settings",
//	  "email": "a@x.com",
//	  "company": "Acme",
//	  "plan": "PRO",
//	  "currency": "usd",
//	  "vat": {"type": "eu_vat", "value": "DE123456789"}
//	}
//
// and succeeds with {"checkoutUrl": "..."}.
//
// # Errors
//
// Failures are JSON {"code", "error"} bodies. billing error codes map to statuses:
//
//	CONFIGURATION_MISSING  500
//	NOT_FOUND              404
//	ALREADY_EXISTS         409
//	VALIDATION_FAILED      400
//	INTERNAL_FAILURE       500
//
// Internal causes are logged, never returned.
package api
