package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements workspace and user persistence on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetWorkspace loads a workspace with its members
func (s *PostgresStore) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	query := `
		SELECT id, name, stripe_id, plan, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`
	ws := &Workspace{}
	var stripeID sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ws.ID, &ws.Name, &stripeID, &ws.Plan, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	if stripeID.Valid {
		ws.StripeID = &stripeID.String
	}

	members, err := s.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	ws.Members = members

	return ws, nil
}

func (s *PostgresStore) listMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	query := `
		SELECT user_id, role
		FROM members
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// UpdateUserCompany sets the company on a user. Updating zero rows is not an error.
func (s *PostgresStore) UpdateUserCompany(ctx context.Context, userID, company string) error {
	query := `UPDATE users SET company = $1, updated_at = NOW() WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, company, userID); err != nil {
		return fmt.Errorf("failed to update user company: %w", err)
	}
	return nil
}

// ClaimStripeCustomer attaches customerID to the workspace only if it has none.
// It returns false when another customer reference is already present.
func (s *PostgresStore) ClaimStripeCustomer(ctx context.Context, workspaceID, customerID string) (bool, error) {
	query := `
		UPDATE workspaces
		SET stripe_id = $1, updated_at = NOW()
		WHERE id = $2 AND (stripe_id IS NULL OR stripe_id = '')
	`
	result, err := s.db.ExecContext(ctx, query, customerID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("failed to claim stripe customer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim stripe customer: %w", err)
	}
	return rows == 1, nil
}

// ReleaseStripeCustomer clears a reference previously set by ClaimStripeCustomer.
// It only clears the reference when it still points at customerID.
func (s *PostgresStore) ReleaseStripeCustomer(ctx context.Context, workspaceID, customerID string) error {
	query := `
		UPDATE workspaces
		SET stripe_id = NULL, updated_at = NOW()
		WHERE id = $1 AND stripe_id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, workspaceID, customerID); err != nil {
		return fmt.Errorf("failed to release stripe customer: %w", err)
	}
	return nil
}

// ActivatePlan records a completed checkout: the plan becomes active and the
// customer reference is stored if the workspace does not have one yet.
func (s *PostgresStore) ActivatePlan(ctx context.Context, workspaceID, plan, customerID string) error {
	query := `
		UPDATE workspaces
		SET plan = $1, stripe_id = COALESCE(NULLIF(stripe_id, ''), $2), updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, plan, customerID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to activate plan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to activate plan: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
