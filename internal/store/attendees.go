package store

import (
	"context"
	"database/sql"
	"fmt"

	"registration-service/internal/models"
)

// UpsertAttendee creates the attendee or merges profile data into the
// existing row keyed by email. Incoming non-empty fields win; empty incoming
// fields never blank stored values. validated only ever flips to true.
// ON CONFLICT also absorbs the duplicate-create race between concurrent
// completion triggers.
func (s *Store) UpsertAttendee(ctx context.Context, a *models.Attendee) error {
	query := `
		INSERT INTO attendees (
			email, name, contact_no, gender, age,
			university_name, address, university_id_card, validated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email) DO UPDATE SET
			name               = COALESCE(NULLIF(EXCLUDED.name, ''), attendees.name),
			contact_no         = COALESCE(NULLIF(EXCLUDED.contact_no, ''), attendees.contact_no),
			gender             = COALESCE(NULLIF(EXCLUDED.gender, ''), attendees.gender),
			age                = CASE WHEN EXCLUDED.age > 0 THEN EXCLUDED.age ELSE attendees.age END,
			university_name    = COALESCE(NULLIF(EXCLUDED.university_name, ''), attendees.university_name),
			address            = COALESCE(NULLIF(EXCLUDED.address, ''), attendees.address),
			university_id_card = COALESCE(NULLIF(EXCLUDED.university_id_card, ''), attendees.university_id_card),
			validated          = attendees.validated OR EXCLUDED.validated,
			updated_at         = NOW()
		RETURNING id, email, name, contact_no, gender, age, university_name,
		          address, university_id_card, credential_image, validated,
		          notification_sent, notification_sent_at, created_at, updated_at`

	return s.db.GetContext(ctx, a, query,
		a.Email, a.Name, a.ContactNo, a.Gender, a.Age,
		a.UniversityName, a.Address, a.UniversityIDCard, a.Validated)
}

// GetAttendeeByID retrieves an attendee by primary key
func (s *Store) GetAttendeeByID(ctx context.Context, id int64) (*models.Attendee, error) {
	var a models.Attendee
	err := s.db.GetContext(ctx, &a, "SELECT * FROM attendees WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", models.ErrAttendeeNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	a.Entitlements, err = s.GetEntitlements(ctx, a.ID)
	return &a, err
}

// GetAttendeeByEmail retrieves an attendee by natural key. Returns nil, nil
// on a miss so resolution chains can fall through to creation.
func (s *Store) GetAttendeeByEmail(ctx context.Context, email string) (*models.Attendee, error) {
	var a models.Attendee
	err := s.db.GetContext(ctx, &a, "SELECT * FROM attendees WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Entitlements, err = s.GetEntitlements(ctx, a.ID)
	return &a, err
}

// AddEntitlements unions event names into the attendee's entitlement set.
// The UNIQUE constraint makes re-adding a present event a no-op.
func (s *Store) AddEntitlements(ctx context.Context, attendeeID int64, events []string) error {
	for _, name := range events {
		if name == "" {
			continue
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO entitlements (attendee_id, event_name) VALUES ($1, $2)
			 ON CONFLICT (attendee_id, event_name) DO NOTHING`,
			attendeeID, name)
		if err != nil {
			return fmt.Errorf("failed to add entitlement %q: %w", name, err)
		}
	}
	return nil
}

// GetEntitlements returns the attendee's entitlement set in insertion order
func (s *Store) GetEntitlements(ctx context.Context, attendeeID int64) ([]string, error) {
	var events []string
	err := s.db.SelectContext(ctx, &events,
		"SELECT event_name FROM entitlements WHERE attendee_id = $1 ORDER BY id", attendeeID)
	return events, err
}

// SetAttendeeCredential stores the rendered credential image. The guard on
// credential_image keeps an already-issued credential stable; callers that
// lose the race simply keep the stored image.
func (s *Store) SetAttendeeCredential(ctx context.Context, attendeeID int64, image []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attendees SET credential_image = $1, updated_at = NOW()
		 WHERE id = $2 AND credential_image IS NULL`,
		image, attendeeID)
	return err
}

// ReplaceAttendeeCredential overwrites the credential image unconditionally.
// Only the operator backfill uses this when re-dispatching a lost ticket.
func (s *Store) ReplaceAttendeeCredential(ctx context.Context, attendeeID int64, image []byte) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE attendees SET credential_image = $1, updated_at = NOW() WHERE id = $2",
		image, attendeeID)
	return err
}

// MarkAttendeeNotified stamps the confirmation dispatch on the attendee
func (s *Store) MarkAttendeeNotified(ctx context.Context, attendeeID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE attendees SET notification_sent = TRUE, notification_sent_at = NOW(), updated_at = NOW() WHERE id = $1",
		attendeeID)
	return err
}
