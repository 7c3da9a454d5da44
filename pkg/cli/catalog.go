package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/workspace-billing/pkg/billing"
)

func newCatalogCommand() *Command {
	cmd := &Command{
		Name:        "catalog",
		Description: "Validate a price catalog file",
		Flags:       flag.NewFlagSet("catalog", flag.ContinueOnError),
		Run:         runCatalog,
	}

	cmd.Flags.String("file", getEnv("BILLING_PRICE_CATALOG_FILE", ""), "Path to the price catalog YAML file")
	cmd.Flags.Bool("strict", false, "Require a price for every plan")

	return cmd
}

func runCatalog(args []string) error {
	cmd := newCatalogCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	path := cmd.Flags.Lookup("file").Value.String()
	strict := cmd.Flags.Lookup("strict").Value.String() == "true"
	if path == "" {
		return fmt.Errorf("file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	prices, err := billing.ParseCatalog(data)
	if err != nil {
		return err
	}

	var missing []billing.Plan
	for _, plan := range billing.Plans {
		price, ok := prices[plan]
		if !ok {
			missing = append(missing, plan)
			log.WithField("plan", plan).Warn("no price configured")
			continue
		}
		fmt.Fprintf(out, "%-10s %s\n", plan, price)
	}

	if strict && len(missing) > 0 {
		return fmt.Errorf("catalog is missing prices for %v", missing)
	}
	return nil
}
