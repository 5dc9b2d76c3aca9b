package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CatalogItem represents a priced entry in the event catalog. Prices are
// authoritative here and never taken from client input.
type CatalogItem struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Placeholder catalog names that never count as real entitlements.
const (
	DemoPaymentItem     = "Demo Payment"
	DemoEventItem       = "Demo Event"
	GeneralRegistration = "General Registration"
)

// RosterMember is a team member as submitted at checkout, keyed under the
// purchased catalog item in the order's roster.
type RosterMember struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// TeamRoster maps a catalog item reference to the members registered under
// it. Stored as JSONB on the order.
type TeamRoster map[string][]RosterMember

func (r TeamRoster) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *TeamRoster) Scan(src interface{}) error {
	if src == nil {
		*r = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into TeamRoster", src)
	}
	return json.Unmarshal(b, r)
}

// Order is the ledger entry for one checkout attempt. The monetary total is
// fixed at creation and the status only ever moves pending -> completed or
// pending -> failed.
type Order struct {
	ID               int64           `db:"id" json:"-"`
	OrderID          string          `db:"order_id" json:"order_id"`
	Status           string          `db:"status" json:"status"`
	TotalAmount      int64           `db:"total_amount" json:"total_amount"`
	Currency         string          `db:"currency" json:"currency"`
	BuyerName        string          `db:"buyer_name" json:"buyer_name"`
	BuyerEmail       string          `db:"buyer_email" json:"buyer_email"`
	BuyerPhone       string          `db:"buyer_phone" json:"buyer_phone,omitempty"`
	BuyerGender      string          `db:"buyer_gender" json:"buyer_gender,omitempty"`
	BuyerAge         int             `db:"buyer_age" json:"buyer_age,omitempty"`
	UniversityName   string          `db:"university_name" json:"university_name,omitempty"`
	Address          string          `db:"address" json:"address,omitempty"`
	UniversityIDCard string          `db:"university_id_card" json:"university_id_card,omitempty"`
	TeamRoster       TeamRoster      `db:"team_roster" json:"team_roster,omitempty"`
	FormData         json.RawMessage `db:"form_data" json:"-"`
	PaymentSessionID string          `db:"payment_session_id" json:"payment_session_id,omitempty"`
	TransactionID    string          `db:"transaction_id" json:"transaction_id,omitempty"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method,omitempty"`
	Environment      string          `db:"environment" json:"environment"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason,omitempty"`
	AttendeeID       sql.NullInt64   `db:"attendee_id" json:"-"`
	CredentialIssued bool            `db:"credential_issued" json:"credential_issued"`
	NotificationSent bool            `db:"notification_sent" json:"notification_sent"`
	NotificationAt   sql.NullTime    `db:"notification_sent_at" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	CompletedAt      sql.NullTime    `db:"completed_at" json:"-"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is one priced line of an order. UnitPrice is the catalog price
// at purchase time.
type OrderItem struct {
	ID        int64  `db:"id" json:"-"`
	OrderID   int64  `db:"order_id" json:"-"`
	CatalogID int64  `db:"catalog_id" json:"catalog_id"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// Attendee is a durable buyer or team-member profile keyed by email. It
// accumulates entitlements across orders and is never deleted here.
type Attendee struct {
	ID               int64        `db:"id" json:"id"`
	Email            string       `db:"email" json:"email"`
	Name             string       `db:"name" json:"name"`
	ContactNo        string       `db:"contact_no" json:"contact_no,omitempty"`
	Gender           string       `db:"gender" json:"gender,omitempty"`
	Age              int          `db:"age" json:"age,omitempty"`
	UniversityName   string       `db:"university_name" json:"university_name,omitempty"`
	Address          string       `db:"address" json:"address,omitempty"`
	UniversityIDCard string       `db:"university_id_card" json:"university_id_card,omitempty"`
	CredentialImage  []byte       `db:"credential_image" json:"-"`
	Validated        bool         `db:"validated" json:"validated"`
	NotificationSent bool         `db:"notification_sent" json:"notification_sent"`
	NotificationAt   sql.NullTime `db:"notification_sent_at" json:"-"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`

	Entitlements []string `db:"-" json:"entitlements,omitempty"`
}

// HasCredential reports whether a credential image was already issued.
// Credentials are never regenerated once present.
func (a *Attendee) HasCredential() bool {
	return len(a.CredentialImage) > 0
}

// TeamComposition groups a leader and members for one event within one
// order. At most one composition exists per (order, event) pair.
type TeamComposition struct {
	ID           int64     `db:"id" json:"id"`
	OrderID      int64     `db:"order_id" json:"-"`
	EventName    string    `db:"event_name" json:"event_name"`
	TeamName     string    `db:"team_name" json:"team_name"`
	LeaderID     int64     `db:"leader_attendee_id" json:"leader_attendee_id"`
	TotalMembers int       `db:"total_members" json:"total_members"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`

	Members []TeamMember `db:"-" json:"members,omitempty"`
}

// TeamMember is an identity snapshot inside a team composition. The durable
// reference is AttendeeID; name and email are captured for display only.
type TeamMember struct {
	ID         int64  `db:"id" json:"-"`
	TeamID     int64  `db:"team_id" json:"-"`
	AttendeeID int64  `db:"attendee_id" json:"attendee_id"`
	Name       string `db:"name" json:"name"`
	Email      string `db:"email" json:"email"`
	Role       string `db:"role" json:"role"`
}
