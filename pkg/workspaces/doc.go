// Package workspaces persists workspaces, their members and the users that
// start checkouts, and answers the admin-write authorization question.
//
// A workspace holds at most one Stripe customer reference. ClaimStripeCustomer
// sets it with a compare-and-set update so concurrent checkouts cannot both win:
//
//	claimed, err := store.ClaimStripeCustomer(ctx, "w1", "cus_123")
//	if err == nil && !claimed {
//		// another request already attached a customer
//	}
//
// Schema changes are versioned in GetMigrations and applied with RunMigrations.
package workspaces
