package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestGetWorkspace(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("with members and no customer", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`SELECT id, name, stripe_id, plan, created_at, updated_at\s+FROM workspaces\s+WHERE id = \$1`).
			WithArgs("w1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "stripe_id", "plan", "created_at", "updated_at"}).
				AddRow("w1", "Acme", nil, "FREE", now, now))
		mock.ExpectQuery(`SELECT user_id, role\s+FROM members\s+WHERE workspace_id = \$1`).
			WithArgs("w1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).
				AddRow("u1", "ADMIN").
				AddRow("u2", "GUEST"))

		ws, err := store.GetWorkspace(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", ws.Name)
		assert.Nil(t, ws.StripeID)
		assert.False(t, ws.HasCustomer())
		assert.Equal(t, []Member{{UserID: "u1", Role: RoleAdmin}, {UserID: "u2", Role: RoleGuest}}, ws.Members)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with customer", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM workspaces`).
			WithArgs("w2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "stripe_id", "plan", "created_at", "updated_at"}).
				AddRow("w2", "Beta", "cus_123", "PRO", now, now))
		mock.ExpectQuery(`FROM members`).
			WithArgs("w2").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}))

		ws, err := store.GetWorkspace(ctx, "w2")
		require.NoError(t, err)
		require.NotNil(t, ws.StripeID)
		assert.Equal(t, "cus_123", *ws.StripeID)
		assert.True(t, ws.HasCustomer())
		assert.Empty(t, ws.Members)
	})

	t.Run("empty customer reference", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM workspaces`).
			WithArgs("w3").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "stripe_id", "plan", "created_at", "updated_at"}).
				AddRow("w3", "Gamma", "", "FREE", now, now))
		mock.ExpectQuery(`FROM members`).
			WithArgs("w3").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}))

		ws, err := store.GetWorkspace(ctx, "w3")
		require.NoError(t, err)
		assert.False(t, ws.HasCustomer())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM workspaces`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetWorkspace(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(`FROM workspaces`).
			WithArgs("w1").
			WillReturnError(errors.New("connection reset"))

		_, err := store.GetWorkspace(ctx, "w1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "failed to get workspace")
	})
}

func TestUpdateUserCompany(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE users SET company = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("Acme", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.UpdateUserCompany(context.Background(), "u1", "Acme"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimStripeCustomer(t *testing.T) {
	ctx := context.Background()

	t.Run("claims unset reference", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE workspaces\s+SET stripe_id = \$1, updated_at = NOW\(\)\s+WHERE id = \$2 AND \(stripe_id IS NULL OR stripe_id = ''\)`).
			WithArgs("cus_1", "w1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		claimed, err := store.ClaimStripeCustomer(ctx, "w1", "cus_1")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("loses race", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`AND \(stripe_id IS NULL OR stripe_id = ''\)`).
			WithArgs("cus_1", "w1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		claimed, err := store.ClaimStripeCustomer(ctx, "w1", "cus_1")
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("exec error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`AND \(stripe_id IS NULL OR stripe_id = ''\)`).
			WillReturnError(errors.New("deadlock detected"))

		_, err := store.ClaimStripeCustomer(ctx, "w1", "cus_1")
		assert.Error(t, err)
	})
}

func TestReleaseStripeCustomer(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`SET stripe_id = NULL, updated_at = NOW\(\)\s+WHERE id = \$1 AND stripe_id = \$2`).
		WithArgs("w1", "cus_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.ReleaseStripeCustomer(context.Background(), "w1", "cus_1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivatePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("activates", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`SET plan = \$1, stripe_id = COALESCE\(NULLIF\(stripe_id, ''\), \$2\)`).
			WithArgs("PRO", "cus_1", "w1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.ActivatePlan(ctx, "w1", "PRO", "cus_1"))
	})

	t.Run("unknown workspace", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`SET plan = \$1`).
			WithArgs("PRO", "cus_1", "nope").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.ActivatePlan(ctx, "nope", "PRO", "cus_1"), ErrNotFound)
	})
}
