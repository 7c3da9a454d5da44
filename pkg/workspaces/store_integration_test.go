//go:build integration

package workspaces

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/platinummonkey/workspace-billing/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("billing"),
		postgres.WithUsername("billing"),
		postgres.WithPassword("billing"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(ctx, db, t.Logf))
	// Second run is a no-op.
	require.NoError(t, RunMigrations(ctx, db, t.Logf))

	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO users (id, email) VALUES ('u1', 'a@x.com'), ('u2', 'b@x.com')`,
		`INSERT INTO workspaces (id, name) VALUES ('w1', 'Acme')`,
		`INSERT INTO members (workspace_id, user_id, role) VALUES ('w1', 'u1', 'ADMIN'), ('w1', 'u2', 'MEMBER')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestPostgresStore_CheckoutLifecycle(t *testing.T) {
	db := setupPostgres(t)
	seed(t, db)

	ctx := context.Background()
	store := NewPostgresStore(db)

	ws, err := store.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "FREE", ws.Plan)
	assert.False(t, ws.HasCustomer())
	assert.False(t, AdminWriteGuard{}.IsAdminWriteForbidden(ws, auth.User{ID: "u1"}))
	assert.True(t, AdminWriteGuard{}.IsAdminWriteForbidden(ws, auth.User{ID: "u2"}))

	require.NoError(t, store.UpdateUserCompany(ctx, "u1", "Acme Inc"))
	var company string
	require.NoError(t, db.QueryRow(`SELECT company FROM users WHERE id = 'u1'`).Scan(&company))
	assert.Equal(t, "Acme Inc", company)

	claimed, err := store.ClaimStripeCustomer(ctx, "w1", "cus_1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimStripeCustomer(ctx, "w1", "cus_2")
	require.NoError(t, err)
	assert.False(t, claimed)

	// Releasing with the wrong customer leaves the reference alone.
	require.NoError(t, store.ReleaseStripeCustomer(ctx, "w1", "cus_2"))
	ws, err = store.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, ws.StripeID)
	assert.Equal(t, "cus_1", *ws.StripeID)

	require.NoError(t, store.ActivatePlan(ctx, "w1", "PRO", "cus_other"))
	ws, err = store.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "PRO", ws.Plan)
	assert.Equal(t, "cus_1", *ws.StripeID)

	_, err = store.GetWorkspace(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_EmptyStripeIDIsClaimable(t *testing.T) {
	db := setupPostgres(t)
	seed(t, db)

	ctx := context.Background()
	store := NewPostgresStore(db)

	_, err := db.Exec(`UPDATE workspaces SET stripe_id = '' WHERE id = 'w1'`)
	require.NoError(t, err)

	ws, err := store.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, ws.HasCustomer())

	claimed, err := store.ClaimStripeCustomer(ctx, "w1", "cus_1")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, err = db.Exec(`UPDATE workspaces SET stripe_id = '' WHERE id = 'w1'`)
	require.NoError(t, err)
	require.NoError(t, store.ActivatePlan(ctx, "w1", "PRO", "cus_2"))
	ws, err = store.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, ws.StripeID)
	assert.Equal(t, "cus_2", *ws.StripeID)
}
