package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/workspace-billing/pkg/api"
	"github.com/platinummonkey/workspace-billing/pkg/billing"
	"github.com/platinummonkey/workspace-billing/pkg/httputil"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func newCheckoutCommand() *Command {
	cmd := &Command{
		Name:        "checkout",
		Description: "Start a subscription checkout for a workspace and print the checkout URL",
		Flags:       flag.NewFlagSet("checkout", flag.ContinueOnError),
		Run:         runCheckout,
	}

	cmd.Flags.String("api", getEnv("BILLING_API_URL", "http://localhost:8080"), "Billing API base URL")
	cmd.Flags.String("token", getEnv("BILLING_ID_TOKEN", ""), "OIDC ID token of the workspace admin")
	cmd.Flags.String("workspace", "", "Workspace ID")
	cmd.Flags.String("email", "", "Billing email (must match the token's email)")
	cmd.Flags.String("company", "", "Company name")
	cmd.Flags.String("plan", string(billing.PlanStarter), "Plan (STARTER or PRO)")
	cmd.Flags.String("currency", string(billing.CurrencyUSD), "Currency (usd or eur)")
	cmd.Flags.String("return-url", "", "URL Stripe redirects to after checkout")
	cmd.Flags.String("vat-type", "", "Tax ID type, e.g. eu_vat")
	cmd.Flags.String("vat-value", "", "Tax ID value")

	return cmd
}

func runCheckout(args []string) error {
	cmd := newCheckoutCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	flagValue := func(name string) string {
		return cmd.Flags.Lookup(name).Value.String()
	}

	apiURL := strings.TrimSuffix(flagValue("api"), "/")
	token := flagValue("token")
	workspace := flagValue("workspace")
	if token == "" || workspace == "" {
		return fmt.Errorf("token and workspace are required")
	}

	body := api.CheckoutSessionRequest{
		ReturnURL: flagValue("return-url"),
		Email:     flagValue("email"),
		Company:   flagValue("company"),
		Plan:      billing.Plan(strings.ToUpper(flagValue("plan"))),
		Currency:  billing.Currency(strings.ToLower(flagValue("currency"))),
	}
	if vatType, vatValue := flagValue("vat-type"), flagValue("vat-value"); vatType != "" || vatValue != "" {
		body.VAT = &billing.VAT{Type: vatType, Value: vatValue}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/checkout-session", apiURL, url.PathEscape(workspace))
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	log.WithField("workspace", workspace).WithField("plan", body.Plan).Debug("requesting checkout session")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call billing API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr httputil.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("billing API returned %s", resp.Status)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("billing API returned %s: %s", resp.Status, apiErr.Error)
	}

	var session billing.CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("failed to decode checkout session: %w", err)
	}

	log.WithField("workspace", workspace).Info("checkout session created")
	fmt.Fprintln(out, session.CheckoutURL)
	return nil
}
