package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/platinummonkey/workspace-billing/pkg/workspaces"
)

// openDB is swapped in tests
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func newMigrateCommand() *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending database migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
		Run:         runMigrate,
	}

	cmd.Flags.String("db", getEnv("BILLING_DATABASE_URL", ""), "PostgreSQL connection string")
	cmd.Flags.Duration("timeout", 2*time.Minute, "Migration timeout")

	return cmd
}

func runMigrate(args []string) error {
	cmd := newMigrateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	dsn := cmd.Flags.Lookup("db").Value.String()
	if dsn == "" {
		return fmt.Errorf("db is required (or set BILLING_DATABASE_URL)")
	}
	timeout, err := time.ParseDuration(cmd.Flags.Lookup("timeout").Value.String())
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := workspaces.RunMigrations(ctx, db, log.Infof); err != nil {
		return err
	}

	log.Info("migrations complete")
	return nil
}
