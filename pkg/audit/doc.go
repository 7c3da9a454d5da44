// Package audit records billing actions for compliance and support.
//
// Every checkout attempt produces one Event: who asked, for which workspace,
// and how it ended. Events are written to the billing_audit_events table by
// DBLogger. A nil or NoOpLogger discards them.
//
//	auditLog := audit.NewDBLogger(db)
//	svc := billing.NewCheckoutService(billing.CheckoutServiceConfig{Audit: auditLog, ...})
//
// Audit writes never fail the action being audited; callers log and move on.
package audit
