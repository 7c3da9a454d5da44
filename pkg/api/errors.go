package api

import (
	"net/http"

	"github.com/platinummonkey/workspace-billing/pkg/billing"
	"github.com/platinummonkey/workspace-billing/pkg/httputil"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
)

// StatusFor maps a billing error code to an HTTP status
func StatusFor(code billing.Code) int {
	switch code {
	case billing.CodeNotFound:
		return http.StatusNotFound
	case billing.CodeAlreadyExists:
		return http.StatusConflict
	case billing.CodeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeBillingError writes err as a coded JSON error. Server-side failures are
// logged with their cause.
func writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	code := billing.CodeOf(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).
			WithField("code", string(code)).
			Error("billing request failed")
	}
	httputil.WriteCodedError(w, status, string(code), billing.PublicMessage(err))
}
