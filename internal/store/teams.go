package store

import (
	"context"
	"database/sql"
	"fmt"

	"registration-service/internal/models"
)

// GetTeamComposition retrieves the composition for an (order, event) pair.
// Returns nil, nil when none exists; the materializer uses this as its
// re-entry guard before creating one.
func (s *Store) GetTeamComposition(ctx context.Context, orderID int64, eventName string) (*models.TeamComposition, error) {
	var tc models.TeamComposition
	err := s.db.GetContext(ctx, &tc,
		"SELECT * FROM team_compositions WHERE order_id = $1 AND event_name = $2",
		orderID, eventName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &tc.Members,
		"SELECT * FROM team_members WHERE team_id = $1 ORDER BY id", tc.ID); err != nil {
		return nil, err
	}
	return &tc, nil
}

// CreateTeamComposition persists a composition and its members in one
// transaction. The UNIQUE(order_id, event_name) constraint backs up the
// caller's existence check: a racing duplicate insert fails instead of
// producing a second composition.
func (s *Store) CreateTeamComposition(ctx context.Context, tc *models.TeamComposition) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO team_compositions (order_id, event_name, team_name, leader_attendee_id, total_members)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tc.OrderID, tc.EventName, tc.TeamName, tc.LeaderID, tc.TotalMembers,
	).Scan(&tc.ID, &tc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert team composition: %w", err)
	}

	for i := range tc.Members {
		m := &tc.Members[i]
		m.TeamID = tc.ID
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO team_members (team_id, attendee_id, name, email, role)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			m.TeamID, m.AttendeeID, m.Name, m.Email, m.Role,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("failed to insert team member: %w", err)
		}
	}

	return tx.Commit()
}

// ListTeamCompositionsByOrder returns every composition created for an order
func (s *Store) ListTeamCompositionsByOrder(ctx context.Context, orderID int64) ([]models.TeamComposition, error) {
	var teams []models.TeamComposition
	err := s.db.SelectContext(ctx, &teams,
		"SELECT * FROM team_compositions WHERE order_id = $1 ORDER BY id", orderID)
	return teams, err
}
